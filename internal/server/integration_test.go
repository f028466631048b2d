package server

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillchat/quill/internal/api"
	"github.com/quillchat/quill/internal/mirror"
	"github.com/quillchat/quill/internal/storage"
)

type recordingView struct {
	mu   sync.Mutex
	msgs []api.Message
}

func (v *recordingView) MaybeAddMessage(msg api.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.msgs = append(v.msgs, msg)
}

func (v *recordingView) Reassemble() {}

func (v *recordingView) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.msgs)
}

// TestMirrorAgainstDevServer drives the full stack: queue registration, the
// long-poll loop, event fan-out to a view, and a send round trip.
func TestMirrorAgainstDevServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	a := newTestApp()
	go func() { _ = a.fiber.Listener(ln) }()
	t.Cleanup(func() { _ = a.fiber.Shutdown() })

	conn, err := api.NewClient("http://"+ln.Addr().String(), "iago@example.com", "key")
	if err != nil {
		t.Fatal(err)
	}

	store, err := mirror.StartLive(context.Background(), storage.Account{ID: 7}, conn, mirror.Options{
		BackoffInitial: 10 * time.Millisecond,
		BackoffMax:     50 * time.Millisecond,
		Log:            zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("start live: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if len(store.Subscriptions()) == 0 || store.MaxUploadSizeMiB() != 25 {
		t.Errorf("snapshot not mirrored: %d subs, %d MiB", len(store.Subscriptions()), store.MaxUploadSizeMiB())
	}

	view := &recordingView{}
	store.RegisterView(view)

	if err := store.SendMessage(context.Background(), "standup", "running late"); err != nil {
		t.Fatalf("send: %v", err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for view.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("sent message never came back through the event stream")
		}
		time.Sleep(5 * time.Millisecond)
	}

	view.mu.Lock()
	got := view.msgs[0]
	view.mu.Unlock()
	if got.Topic != "standup" || got.Content != "running late" || got.SenderEmail != "iago@example.com" {
		t.Errorf("mirrored message = %+v", got)
	}
	if err := store.Err(); err != nil {
		t.Errorf("loop error: %v", err)
	}
}
