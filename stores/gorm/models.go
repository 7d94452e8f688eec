//go:build !wasm
// +build !wasm

package gorm

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/halcyonic/sessionkit"
)

// JSONMap is a helper type for storing JSON maps in GORM
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// UserModel is the GORM model for users
type UserModel struct {
	ID        string    `gorm:"primaryKey;size:64"`
	Email     string    `gorm:"size:255;uniqueIndex"`
	Name      string    `gorm:"size:255"`
	Picture   string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string {
	return "users"
}

func (m *UserModel) ToUser() *sessionkit.User {
	return &sessionkit.User{
		ID:      m.ID,
		Email:   m.Email,
		Name:    m.Name,
		Picture: m.Picture,
	}
}

func UserToModel(u *sessionkit.User) *UserModel {
	return &UserModel{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Picture: u.Picture,
	}
}

// AccountModel is the GORM model for sign-in accounts
type AccountModel struct {
	Provider     string    `gorm:"primaryKey;size:32"`
	Subject      string    `gorm:"primaryKey;size:255"`
	UserID       string    `gorm:"size:64;index"`
	Email        string    `gorm:"size:255"`
	PasswordHash string    `gorm:"size:128"`
	Profile      JSONMap   `gorm:"type:jsonb"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

func (AccountModel) TableName() string {
	return "accounts"
}

func (m *AccountModel) ToAccount() *sessionkit.Account {
	return &sessionkit.Account{
		Provider:     m.Provider,
		Subject:      m.Subject,
		UserID:       m.UserID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		Profile:      m.Profile,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func AccountToModel(a *sessionkit.Account) *AccountModel {
	return &AccountModel{
		Provider:     a.Provider,
		Subject:      a.Subject,
		UserID:       a.UserID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Profile:      JSONMap(a.Profile),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
