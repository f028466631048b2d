// Package registry holds the in-memory set of known accounts. The set is
// seeded from persistent storage once at startup and is the sole source of
// truth afterwards; storage is only written to.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/quillchat/quill/internal/secret"
	"github.com/quillchat/quill/internal/storage"
)

// InsertParams carries the caller-supplied fields of a new account. The API
// key is sealed before it touches storage.
type InsertParams struct {
	ServerURL string
	Email     string
	APIKey    string
}

// Registry owns the account set and notifies observers when it changes.
type Registry struct {
	store storage.Store
	key   secret.Key
	log   zerolog.Logger

	mu       sync.RWMutex
	accounts map[int64]storage.Account
	onChange []func()
}

// New loads all persisted accounts into memory.
func New(ctx context.Context, store storage.Store, key secret.Key, log zerolog.Logger) (*Registry, error) {
	accounts, err := store.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load accounts: %w", err)
	}

	byID := make(map[int64]storage.Account, len(accounts))
	for _, account := range accounts {
		byID[account.ID] = account
	}
	log.Debug().Int("accounts", len(byID)).Msg("account registry loaded")

	return &Registry{
		store:    store,
		key:      key,
		log:      log,
		accounts: byID,
	}, nil
}

// List returns a snapshot of all known accounts ordered by id.
func (r *Registry) List() []storage.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()

	accounts := make([]storage.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		accounts = append(accounts, account)
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })
	return accounts
}

// Get returns the account with the given id or storage.ErrNotFound.
func (r *Registry) Get(id int64) (storage.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	account, ok := r.accounts[id]
	if !ok {
		return storage.Account{}, fmt.Errorf("account %d: %w", id, storage.ErrNotFound)
	}
	return account, nil
}

// Insert seals the credential, persists the account, and adds it to the
// in-memory set under the id storage assigned. Persistence failures propagate
// unchanged; nothing is retried.
func (r *Registry) Insert(ctx context.Context, params InsertParams) (storage.Account, error) {
	sealed, err := r.key.Seal(params.APIKey)
	if err != nil {
		return storage.Account{}, fmt.Errorf("seal api key: %w", err)
	}

	account := storage.Account{
		ServerURL:    params.ServerURL,
		Email:        params.Email,
		APIKeySealed: sealed,
	}
	if err := r.store.InsertAccount(ctx, &account); err != nil {
		return storage.Account{}, fmt.Errorf("insert account: %w", err)
	}

	r.mu.Lock()
	r.accounts[account.ID] = account
	observers := append([]func(){}, r.onChange...)
	r.mu.Unlock()

	r.log.Info().Int64("account_id", account.ID).Str("email", account.Email).Msg("account added")
	for _, fn := range observers {
		fn()
	}
	return account, nil
}

// APIKey opens the sealed credential of a known account.
func (r *Registry) APIKey(account storage.Account) (string, error) {
	return r.key.Open(account.APIKeySealed)
}

// OnChange registers an observer invoked after every mutation of the account
// set. Observers must not call back into the registry.
func (r *Registry) OnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = append(r.onChange, fn)
}
