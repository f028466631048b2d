// Package mirror maintains live, consistent in-memory mirrors of server-side
// account state. A store is seeded from the snapshot returned by queue
// registration and kept current by an event loop that applies server events
// exactly once, in order.
package mirror

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quillchat/quill/internal/api"
	"github.com/quillchat/quill/internal/storage"
)

// Store is the authoritative in-memory snapshot of one account's chat state.
// It owns the account's API connection exclusively.
type Store struct {
	account storage.Account
	conn    *api.Client
	log     zerolog.Logger

	mu            sync.Mutex
	serverVersion string
	subscriptions map[int64]api.Subscription
	maxUploadMiB  int
	views         map[View]struct{}
	onChange      []func()
}

func newStore(account storage.Account, conn *api.Client, snapshot api.RegisterResponse, log zerolog.Logger) *Store {
	s := &Store{
		account: account,
		conn:    conn,
		log:     log.With().Int64("account_id", account.ID).Logger(),
		views:   make(map[View]struct{}),
	}
	s.seed(snapshot)
	return s
}

// seed replaces the snapshot-derived fields. Called at construction and again
// when the event loop has to register a replacement queue.
func (s *Store) seed(snapshot api.RegisterResponse) {
	subs := make(map[int64]api.Subscription, len(snapshot.Subscriptions))
	for _, sub := range snapshot.Subscriptions {
		subs[sub.StreamID] = sub
	}

	s.mu.Lock()
	s.serverVersion = snapshot.ServerVersion
	s.subscriptions = subs
	s.maxUploadMiB = snapshot.MaxUploadSizeMiB
	s.mu.Unlock()
}

// Account returns the identity this store mirrors.
func (s *Store) Account() storage.Account { return s.account }

// ServerVersion reports the server version string from the snapshot.
func (s *Store) ServerVersion() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverVersion
}

// MaxUploadSizeMiB reports the server's upload limit.
func (s *Store) MaxUploadSizeMiB() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxUploadMiB
}

// Subscriptions returns the subscribed streams ordered by stream id.
func (s *Store) Subscriptions() []api.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	subs := make([]api.Subscription, 0, len(s.subscriptions))
	for _, sub := range s.subscriptions {
		subs = append(subs, sub)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].StreamID < subs[j].StreamID })
	return subs
}

// Subscription looks up one stream by id.
func (s *Store) Subscription(streamID int64) (api.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subscriptions[streamID]
	return sub, ok
}

// RegisterView adds a view to the store's observer set. Registering a view
// twice is a programming error and panics.
func (s *Store) RegisterView(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[v]; ok {
		panic(fmt.Sprintf("mirror: view %T registered twice", v))
	}
	s.views[v] = struct{}{}
}

// UnregisterView removes a previously registered view. Unregistering a view
// that is not registered is a programming error and panics.
func (s *Store) UnregisterView(v View) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[v]; !ok {
		panic(fmt.Sprintf("mirror: view %T not registered", v))
	}
	delete(s.views, v)
}

// Reassemble instructs every registered view to recompute derived state from
// the current snapshot. No network traffic is involved.
func (s *Store) Reassemble() {
	for _, v := range s.viewList() {
		v.Reassemble()
	}
}

// ApplyEvent dispatches one event to the store. Heartbeats and alert-word
// updates change no state; messages fan out to every registered view. An
// event matching no known variant is a deserialization bug and returns an
// error the caller must treat as fatal.
func (s *Store) ApplyEvent(ev api.Event) error {
	switch ev := ev.(type) {
	case *api.HeartbeatEvent:
		s.log.Trace().Int64("event_id", ev.ID).Msg("heartbeat")
	case *api.AlertWordsEvent:
		// Alert words are not mirrored yet; the payload is dropped on purpose.
		s.log.Debug().Int64("event_id", ev.ID).Int("words", len(ev.Words)).Msg("alert words event dropped")
	case *api.MessageEvent:
		for _, v := range s.viewList() {
			v.MaybeAddMessage(ev.Message)
		}
		s.notifyChange()
	case *api.UnknownEvent:
		s.log.Warn().Int64("event_id", ev.ID).Str("event_type", ev.Type).Msg("ignoring unrecognized event type")
	default:
		return fmt.Errorf("%w: unexpected event %T", api.ErrMalformedEvent, ev)
	}
	return nil
}

// SendMessage forwards to the server. There is no optimistic local echo; the
// message comes back through the event stream like any other.
func (s *Store) SendMessage(ctx context.Context, topic, content string) error {
	return s.conn.SendMessage(ctx, topic, content)
}

// OnChange registers an observer invoked after events mutate the store.
// Observers must not call back into the store.
func (s *Store) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

func (s *Store) viewList() []View {
	s.mu.Lock()
	defer s.mu.Unlock()
	views := make([]View, 0, len(s.views))
	for v := range s.views {
		views = append(views, v)
	}
	return views
}

func (s *Store) notifyChange() {
	s.mu.Lock()
	observers := append([]func(){}, s.onChange...)
	s.mu.Unlock()
	for _, fn := range observers {
		fn()
	}
}
