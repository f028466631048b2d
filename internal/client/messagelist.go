package client

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/quillchat/quill/internal/api"
)

// MessageList is one rendered message list. It implements the view capability
// the mirror store fans events through, filtering on its own topic criteria
// and caching pre-rendered lines as derived state.
type MessageList struct {
	mu       sync.Mutex
	topic    string // empty matches every topic
	messages []api.Message
	lines    []string
	notify   func()
}

// NewMessageList builds a list filtered to the given topic; an empty topic
// accepts everything. notify is invoked after every visible change and must
// not call back into the list.
func NewMessageList(topic string, notify func()) *MessageList {
	if notify == nil {
		notify = func() {}
	}
	return &MessageList{topic: topic, notify: notify}
}

// MaybeAddMessage incorporates the message if it matches the list's filter.
func (l *MessageList) MaybeAddMessage(msg api.Message) {
	l.mu.Lock()
	if !l.matches(msg) {
		l.mu.Unlock()
		return
	}
	l.messages = append(l.messages, msg)
	l.lines = append(l.lines, formatMessage(msg))
	l.mu.Unlock()
	l.notify()
}

// Reassemble rebuilds the rendered lines from the raw messages.
func (l *MessageList) Reassemble() {
	l.mu.Lock()
	l.lines = make([]string, 0, len(l.messages))
	for _, msg := range l.messages {
		l.lines = append(l.lines, formatMessage(msg))
	}
	l.mu.Unlock()
	l.notify()
}

// Lines returns a snapshot of the rendered message lines.
func (l *MessageList) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string{}, l.lines...)
}

// Len reports how many messages the list holds.
func (l *MessageList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.messages)
}

func (l *MessageList) matches(msg api.Message) bool {
	return l.topic == "" || strings.EqualFold(l.topic, msg.Topic)
}

func formatMessage(msg api.Message) string {
	sender := strings.TrimSpace(msg.SenderName)
	if sender == "" {
		sender = msg.SenderEmail
	}
	stamp := time.Unix(msg.Timestamp, 0).Local().Format("15:04:05")
	return fmt.Sprintf("[%s] #%s/%s %s: %s", stamp, msg.Stream, msg.Topic, sender, msg.Content)
}
