package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/quillchat/quill/internal/config"
	"github.com/quillchat/quill/internal/storage"
)

// Store is a GORM-backed SQLite implementation of storage.Store.
type Store struct {
	db *gorm.DB
}

type accountModel struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	ServerURL    string `gorm:"index:idx_identity,unique"`
	Email        string `gorm:"index:idx_identity,unique"`
	APIKeySealed string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (accountModel) TableName() string { return "accounts" }

// NewStore opens a SQLite database at the configured path.
func NewStore(cfg config.DatabaseConfig) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Migrate applies schema updates.
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&accountModel{})
}

// ListAccounts returns every stored account ordered by id.
func (s *Store) ListAccounts(ctx context.Context) ([]storage.Account, error) {
	var models []accountModel
	if err := s.db.WithContext(ctx).Order("id").Find(&models).Error; err != nil {
		return nil, err
	}
	accounts := make([]storage.Account, 0, len(models))
	for _, m := range models {
		accounts = append(accounts, m.toAccount())
	}
	return accounts, nil
}

// AccountByID retrieves a single account.
func (s *Store) AccountByID(ctx context.Context, id int64) (storage.Account, error) {
	var model accountModel
	if err := s.db.WithContext(ctx).First(&model, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.Account{}, storage.ErrNotFound
		}
		return storage.Account{}, err
	}
	return model.toAccount(), nil
}

// InsertAccount persists a new account and writes the assigned id back into
// the supplied record.
func (s *Store) InsertAccount(ctx context.Context, account *storage.Account) error {
	if account == nil {
		return errors.New("nil account")
	}
	now := time.Now().UTC()
	model := accountModel{
		ServerURL:    account.ServerURL,
		Email:        account.Email,
		APIKeySealed: account.APIKeySealed,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return err
	}
	account.ID = model.ID
	account.CreatedAt = model.CreatedAt
	account.UpdatedAt = model.UpdatedAt
	return nil
}

func (m accountModel) toAccount() storage.Account {
	return storage.Account{
		ID:           m.ID,
		ServerURL:    m.ServerURL,
		Email:        m.Email,
		APIKeySealed: m.APIKeySealed,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}
