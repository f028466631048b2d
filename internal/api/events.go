package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tidwall/gjson"
)

// ErrMalformedEvent is returned when a poll payload cannot be mapped onto any
// event shape at all. Callers treat this as fatal; continuing would risk
// silently dropping state changes.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one entry from the server's per-queue event stream. IDs are
// assigned by the server and strictly increase within a queue.
type Event interface {
	EventID() int64
}

// HeartbeatEvent keeps an idle long-poll alive; it carries no state change.
type HeartbeatEvent struct {
	ID int64 `json:"id"`
}

// AlertWordsEvent announces an updated alert-word list.
type AlertWordsEvent struct {
	ID    int64    `json:"id"`
	Words []string `json:"alert_words"`
}

// MessageEvent carries a newly posted message.
type MessageEvent struct {
	ID      int64   `json:"id"`
	Message Message `json:"message"`
}

// UnknownEvent wraps a variant this client does not recognize. It is logged
// and skipped rather than treated as an error, so newer servers stay usable.
type UnknownEvent struct {
	ID   int64
	Type string
	Raw  json.RawMessage
}

func (e *HeartbeatEvent) EventID() int64  { return e.ID }
func (e *AlertWordsEvent) EventID() int64 { return e.ID }
func (e *MessageEvent) EventID() int64    { return e.ID }
func (e *UnknownEvent) EventID() int64    { return e.ID }

// DecodeEvent maps one raw event object onto its concrete variant. A payload
// without the id/type envelope fields is malformed; an unrecognized type tag
// decodes to UnknownEvent.
func DecodeEvent(raw json.RawMessage) (Event, error) {
	id := gjson.GetBytes(raw, "id")
	kind := gjson.GetBytes(raw, "type")
	if !id.Exists() || id.Type != gjson.Number || !kind.Exists() {
		return nil, fmt.Errorf("%w: %s", ErrMalformedEvent, truncate(raw, 120))
	}

	switch kind.String() {
	case "heartbeat":
		var ev HeartbeatEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return &ev, nil
	case "alert_words":
		var ev AlertWordsEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return &ev, nil
	case "message":
		var ev MessageEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		return &ev, nil
	default:
		return &UnknownEvent{ID: id.Int(), Type: kind.String(), Raw: raw}, nil
	}
}

func truncate(raw []byte, limit int) string {
	if len(raw) <= limit {
		return string(raw)
	}
	return string(raw[:limit]) + "..."
}
