//go:build !wasm
// +build !wasm

package gorm

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/halcyonic/sessionkit"
)

// AutoMigrate runs database migrations for the sessionkit tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&UserModel{},
		&AccountModel{},
	)
}

// Store implements sessionkit.Store using GORM
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(user *sessionkit.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID required")
	}
	return s.db.Create(UserToModel(user)).Error
}

func (s *Store) GetUserByID(id string) (*sessionkit.User, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %s: %w", id, sessionkit.ErrUserNotFound)
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *Store) GetUserByEmail(email string) (*sessionkit.User, error) {
	var model UserModel
	if err := s.db.First(&model, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("email %s: %w", email, sessionkit.ErrUserNotFound)
		}
		return nil, err
	}
	return model.ToUser(), nil
}

func (s *Store) SaveUser(user *sessionkit.User) error {
	return s.db.Save(UserToModel(user)).Error
}

func (s *Store) GetAccount(provider, subject string) (*sessionkit.Account, error) {
	var model AccountModel
	err := s.db.First(&model, "provider = ? AND subject = ?", provider, subject).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("account %s: %w",
				sessionkit.AccountKey(provider, subject), sessionkit.ErrAccountNotFound)
		}
		return nil, err
	}
	return model.ToAccount(), nil
}

func (s *Store) SaveAccount(acct *sessionkit.Account) error {
	if acct.Provider == "" || acct.Subject == "" {
		return fmt.Errorf("account provider and subject required")
	}
	return s.db.Save(AccountToModel(acct)).Error
}

func (s *Store) ListUserAccounts(userID string) ([]*sessionkit.Account, error) {
	var models []AccountModel
	if err := s.db.Where("user_id = ?", userID).Find(&models).Error; err != nil {
		return nil, err
	}

	accounts := make([]*sessionkit.Account, len(models))
	for i, m := range models {
		accounts[i] = m.ToAccount()
	}
	return accounts, nil
}
