package client

import (
	"strings"
	"testing"

	"github.com/quillchat/quill/internal/api"
)

func testMessage(topic, content string) api.Message {
	return api.Message{
		ID:          1,
		SenderEmail: "iago@example.com",
		SenderName:  "iago",
		Stream:      "general",
		Topic:       topic,
		Content:     content,
		Timestamp:   1700000000,
	}
}

func TestMessageListAcceptsMatchingTopic(t *testing.T) {
	notified := 0
	list := NewMessageList("lunch", func() { notified++ })

	list.MaybeAddMessage(testMessage("lunch", "soup"))
	list.MaybeAddMessage(testMessage("Lunch", "case-insensitive"))
	list.MaybeAddMessage(testMessage("deploys", "filtered out"))

	if list.Len() != 2 {
		t.Errorf("Len = %d, want 2", list.Len())
	}
	if notified != 2 {
		t.Errorf("notified %d times, want 2", notified)
	}
	for _, line := range list.Lines() {
		if strings.Contains(line, "filtered out") {
			t.Errorf("filtered message rendered: %q", line)
		}
	}
}

func TestMessageListEmptyTopicAcceptsEverything(t *testing.T) {
	list := NewMessageList("", nil)
	list.MaybeAddMessage(testMessage("a", "x"))
	list.MaybeAddMessage(testMessage("b", "y"))
	if list.Len() != 2 {
		t.Errorf("Len = %d, want 2", list.Len())
	}
}

func TestReassembleRebuildsLines(t *testing.T) {
	list := NewMessageList("", nil)
	list.MaybeAddMessage(testMessage("a", "first"))
	list.MaybeAddMessage(testMessage("b", "second"))

	before := list.Lines()
	list.Reassemble()
	after := list.Lines()

	if len(after) != len(before) {
		t.Fatalf("line count changed: %d -> %d", len(before), len(after))
	}
	for i := range after {
		if after[i] != before[i] {
			t.Errorf("line %d changed: %q -> %q", i, before[i], after[i])
		}
	}
}

func TestLinesReturnsACopy(t *testing.T) {
	list := NewMessageList("", nil)
	list.MaybeAddMessage(testMessage("a", "x"))

	lines := list.Lines()
	lines[0] = "mutated"
	if list.Lines()[0] == "mutated" {
		t.Error("Lines exposed internal state")
	}
}
