//go:build !wasm
// +build !wasm

package gcloud

import (
	"encoding/json"
	"time"

	"cloud.google.com/go/datastore"

	"github.com/halcyonic/sessionkit"
)

// UserEntity is the Datastore entity for users. The key name is the user ID.
type UserEntity struct {
	Key       *datastore.Key `datastore:"__key__"`
	Email     string         `datastore:"email"`
	Name      string         `datastore:"name,noindex"`
	Picture   string         `datastore:"picture,noindex"`
	CreatedAt time.Time      `datastore:"created_at"`
	UpdatedAt time.Time      `datastore:"updated_at"`
}

func (e *UserEntity) ToUser() *sessionkit.User {
	return &sessionkit.User{
		ID:      e.Key.Name,
		Email:   e.Email,
		Name:    e.Name,
		Picture: e.Picture,
	}
}

// AccountEntity is the Datastore entity for sign-in accounts
// Key format: Provider + ":" + Subject
type AccountEntity struct {
	Key          *datastore.Key `datastore:"__key__"`
	Provider     string         `datastore:"provider"`
	Subject      string         `datastore:"subject"`
	UserID       string         `datastore:"user_id"`
	Email        string         `datastore:"email"`
	PasswordHash string         `datastore:"password_hash,noindex"`
	Profile      []byte         `datastore:"profile,noindex"` // JSON encoded
	CreatedAt    time.Time      `datastore:"created_at"`
	UpdatedAt    time.Time      `datastore:"updated_at"`
}

func (e *AccountEntity) ToAccount() *sessionkit.Account {
	var profile map[string]any
	if e.Profile != nil {
		json.Unmarshal(e.Profile, &profile)
	}
	return &sessionkit.Account{
		Provider:     e.Provider,
		Subject:      e.Subject,
		UserID:       e.UserID,
		Email:        e.Email,
		PasswordHash: e.PasswordHash,
		Profile:      profile,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
}

func AccountToEntity(a *sessionkit.Account, key *datastore.Key) *AccountEntity {
	var profileBytes []byte
	if a.Profile != nil {
		profileBytes, _ = json.Marshal(a.Profile)
	}
	return &AccountEntity{
		Key:          key,
		Provider:     a.Provider,
		Subject:      a.Subject,
		UserID:       a.UserID,
		Email:        a.Email,
		PasswordHash: a.PasswordHash,
		Profile:      profileBytes,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
