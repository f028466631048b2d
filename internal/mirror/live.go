package mirror

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quillchat/quill/internal/api"
	"github.com/quillchat/quill/internal/storage"
)

// ErrOutOfOrder signals that the server delivered an event whose id is not
// strictly greater than the last applied one. The loop stops rather than
// apply it.
var ErrOutOfOrder = errors.New("event out of order")

// Options tunes a live store's event loop.
type Options struct {
	// PollTimeout bounds each long-poll request. A server that stops
	// answering without closing the connection would otherwise hang the
	// loop forever; hitting the timeout counts as a transient failure.
	PollTimeout time.Duration
	// BackoffInitial is the first wait after a transient poll failure; each
	// consecutive failure doubles it up to BackoffMax. Any success resets it.
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	Log            zerolog.Logger
}

func (o *Options) defaults() {
	if o.PollTimeout == 0 {
		o.PollTimeout = 90 * time.Second
	}
	if o.BackoffInitial == 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = 30 * time.Second
	}
}

// LiveStore extends Store with a registered event queue and the long-poll
// loop that keeps the mirror current.
type LiveStore struct {
	*Store

	stateMu     sync.Mutex
	queueID     string
	queueToken  string
	lastEventID int64
	loopErr     error

	cancel context.CancelFunc
	done   chan struct{}
}

// StartLive registers an event queue for the account, seeds a store from the
// returned snapshot, and starts the poll loop. Registration failure aborts
// construction. The loop outlives ctx, which only bounds construction; it
// stops when Close is called or a fatal error occurs.
func StartLive(ctx context.Context, account storage.Account, conn *api.Client, opts Options) (*LiveStore, error) {
	opts.defaults()

	snapshot, err := conn.RegisterQueue(ctx)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", account.ID, err)
	}

	s := &LiveStore{
		Store:       newStore(account, conn, snapshot, opts.Log),
		queueID:     snapshot.QueueID,
		queueToken:  snapshot.QueueToken,
		lastEventID: snapshot.LastEventID,
		done:        make(chan struct{}),
	}
	ev := s.log.Info().
		Str("queue_id", snapshot.QueueID).
		Int64("last_event_id", snapshot.LastEventID).
		Str("server_version", snapshot.ServerVersion)
	if exp, err := api.QueueTokenExpiry(snapshot.QueueToken); err == nil {
		ev = ev.Time("token_expiry", exp)
	}
	ev.Msg("event queue registered")

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(loopCtx, opts)
	return s, nil
}

// QueueID returns the current event queue identifier.
func (s *LiveStore) QueueID() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.queueID
}

// LastEventID returns the id of the most recently applied event.
func (s *LiveStore) LastEventID() int64 {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.lastEventID
}

// Done is closed when the event loop has stopped.
func (s *LiveStore) Done() <-chan struct{} { return s.done }

// Err reports the fatal error that stopped the loop, if any. It is nil while
// the loop is running and after a clean Close.
func (s *LiveStore) Err() error {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.loopErr
}

// Close stops the event loop and waits for it to finish, so the network
// connection is never leaked.
func (s *LiveStore) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *LiveStore) run(ctx context.Context, opts Options) {
	defer close(s.done)

	err := s.poll(ctx, opts)
	if err == nil || errors.Is(err, context.Canceled) {
		s.log.Debug().Msg("event loop stopped")
		return
	}

	s.stateMu.Lock()
	s.loopErr = err
	s.stateMu.Unlock()
	s.log.Error().Err(err).Msg("event loop terminated")
	s.notifyChange()
}

func (s *LiveStore) poll(ctx context.Context, opts Options) error {
	backoff := opts.BackoffInitial

	for {
		queueID, queueToken, lastEventID := s.queueState()
		pollCtx, cancel := context.WithTimeout(ctx, opts.PollTimeout)
		events, err := s.conn.PollEvents(pollCtx, queueID, queueToken, lastEventID)
		cancel()

		// A poll that only hit its own deadline falls through to the
		// transient branch; the ctx check below matches loop cancellation.
		switch {
		case err == nil:
			backoff = opts.BackoffInitial
			if err := s.applyBatch(events); err != nil {
				return err
			}

		case ctx.Err() != nil:
			return ctx.Err()

		case errors.Is(err, api.ErrMalformedEvent):
			// Skipping an undecodable event would silently lose state.
			return err

		case errors.Is(err, api.ErrBadQueue):
			s.log.Warn().Str("queue_id", queueID).Msg("event queue expired, registering a new one")
			if err := s.reregister(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.log.Warn().Err(err).Dur("backoff", backoff).Msg("queue re-registration failed")
				if err := sleep(ctx, backoff); err != nil {
					return err
				}
				backoff = nextBackoff(backoff, opts.BackoffMax)
			}

		default:
			s.log.Warn().Err(err).Dur("backoff", backoff).Msg("poll failed, backing off")
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			backoff = nextBackoff(backoff, opts.BackoffMax)
		}
	}
}

// applyBatch applies events strictly in the order received. Each applied
// event advances lastEventID, so after a non-empty batch it equals the id of
// the batch's final event; an empty batch leaves it untouched.
func (s *LiveStore) applyBatch(events []api.Event) error {
	for _, ev := range events {
		id := ev.EventID()
		last := s.LastEventID()
		if id <= last {
			return fmt.Errorf("%w: event %d after %d", ErrOutOfOrder, id, last)
		}
		if err := s.ApplyEvent(ev); err != nil {
			return err
		}
		s.stateMu.Lock()
		s.lastEventID = id
		s.stateMu.Unlock()
	}
	return nil
}

// reregister replaces an expired queue with a fresh one and reseeds the
// snapshot fields, then has the views rebuild their derived state.
func (s *LiveStore) reregister(ctx context.Context) error {
	snapshot, err := s.conn.RegisterQueue(ctx)
	if err != nil {
		return err
	}

	s.seed(snapshot)
	s.stateMu.Lock()
	s.queueID = snapshot.QueueID
	s.queueToken = snapshot.QueueToken
	s.lastEventID = snapshot.LastEventID
	s.stateMu.Unlock()

	ev := s.log.Info().
		Str("queue_id", snapshot.QueueID).
		Int64("last_event_id", snapshot.LastEventID)
	if exp, err := api.QueueTokenExpiry(snapshot.QueueToken); err == nil {
		ev = ev.Time("token_expiry", exp)
	}
	ev.Msg("replacement queue registered")
	s.Reassemble()
	s.notifyChange()
	return nil
}

func (s *LiveStore) queueState() (queueID, queueToken string, lastEventID int64) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.queueID, s.queueToken, s.lastEventID
}

func nextBackoff(current, max time.Duration) time.Duration {
	if current *= 2; current > max {
		return max
	}
	return current
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
