package api

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecodeEventVariants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Event
	}{
		{
			name: "heartbeat",
			raw:  `{"id":7,"type":"heartbeat"}`,
			want: &HeartbeatEvent{ID: 7},
		},
		{
			name: "alert words",
			raw:  `{"id":8,"type":"alert_words","alert_words":["oncall","deploy"]}`,
			want: &AlertWordsEvent{ID: 8, Words: []string{"oncall", "deploy"}},
		},
		{
			name: "message",
			raw:  `{"id":9,"type":"message","message":{"id":400,"stream":"general","topic":"lunch","content":"soup"}}`,
			want: &MessageEvent{ID: 9, Message: Message{ID: 400, Stream: "general", Topic: "lunch", Content: "soup"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent(json.RawMessage(tt.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.EventID() != tt.want.EventID() {
				t.Errorf("EventID = %d, want %d", got.EventID(), tt.want.EventID())
			}
			switch want := tt.want.(type) {
			case *HeartbeatEvent:
				if _, ok := got.(*HeartbeatEvent); !ok {
					t.Errorf("got %T, want heartbeat", got)
				}
			case *AlertWordsEvent:
				ev, ok := got.(*AlertWordsEvent)
				if !ok {
					t.Fatalf("got %T, want alert words", got)
				}
				if len(ev.Words) != len(want.Words) {
					t.Errorf("Words = %v", ev.Words)
				}
			case *MessageEvent:
				ev, ok := got.(*MessageEvent)
				if !ok {
					t.Fatalf("got %T, want message", got)
				}
				if ev.Message != want.Message {
					t.Errorf("Message = %+v, want %+v", ev.Message, want.Message)
				}
			}
		})
	}
}

func TestDecodeEventUnknownType(t *testing.T) {
	got, err := DecodeEvent(json.RawMessage(`{"id":10,"type":"reaction","emoji":"tada"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, ok := got.(*UnknownEvent)
	if !ok {
		t.Fatalf("got %T, want UnknownEvent", got)
	}
	if ev.ID != 10 || ev.Type != "reaction" {
		t.Errorf("ev = %+v", ev)
	}
}

func TestDecodeEventMalformed(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"type":"heartbeat"}`,
		`{"id":5}`,
		`{"id":"five","type":"heartbeat"}`,
		`[1,2,3]`,
	} {
		if _, err := DecodeEvent(json.RawMessage(raw)); !errors.Is(err, ErrMalformedEvent) {
			t.Errorf("DecodeEvent(%s) err = %v, want ErrMalformedEvent", raw, err)
		}
	}
}
