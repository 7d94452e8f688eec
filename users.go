package sessionkit

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/halcyonic/sessionkit/providers"
)

// Account links a user to one way of signing in. OAuth accounts carry the
// provider's stable subject; the credentials account carries the bcrypt
// password hash and uses the email itself as subject.
type Account struct {
	Provider     string         `json:"provider"`
	Subject      string         `json:"subject"`
	UserID       string         `json:"user_id"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"password_hash,omitempty"`
	Profile      map[string]any `json:"profile,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// AccountKey builds the composite key stores index accounts by.
func AccountKey(provider, subject string) string {
	return provider + ":" + subject
}

// UserStore manages user records. Lookups return ErrUserNotFound (possibly
// wrapped) when no record exists.
type UserStore interface {
	// CreateUser stores a new user. The ID must be set.
	CreateUser(user *User) error

	// GetUserByID retrieves a user by ID.
	GetUserByID(id string) (*User, error)

	// GetUserByEmail retrieves a user by email, byte-for-byte.
	GetUserByEmail(email string) (*User, error)

	// SaveUser creates or updates a user (upsert).
	SaveUser(user *User) error
}

// AccountStore manages sign-in accounts. Lookups return ErrAccountNotFound
// (possibly wrapped) when no record exists.
type AccountStore interface {
	// GetAccount retrieves the account for a provider and subject.
	GetAccount(provider, subject string) (*Account, error)

	// SaveAccount creates or updates an account (upsert).
	SaveAccount(acct *Account) error

	// ListUserAccounts returns all accounts belonging to a user.
	ListUserAccounts(userID string) ([]*Account, error)
}

// Store combines the store interfaces a Service needs.
type Store interface {
	UserStore
	AccountStore
}

// EnsureUser resolves a provider identity to a user, creating records as
// needed. Resolution order:
//
//  1. An account for (provider, subject) exists: its user signs in. The
//     user's profile fields are refreshed from the identity.
//  2. A user with the identity's email exists: the account is linked to
//     that user, but only if the provider verified the email. Otherwise
//     the sign-in is rejected so an unverified provider account cannot
//     take over an existing user.
//  3. Neither exists: a new user and account are created.
//
// The identity's email is stored as reported by the provider, unchanged.
func EnsureUser(store Store, ident *providers.Identity) (*User, error) {
	if ident.Subject == "" {
		return nil, fmt.Errorf("identity from %s has no subject", ident.Provider)
	}
	if ident.Email == "" {
		return nil, fmt.Errorf("identity from %s has no email", ident.Provider)
	}

	acct, err := store.GetAccount(ident.Provider, ident.Subject)
	switch {
	case err == nil:
		user, err := store.GetUserByID(acct.UserID)
		if err != nil {
			return nil, fmt.Errorf("account %s has no user: %w", AccountKey(ident.Provider, ident.Subject), err)
		}
		if refreshUser(user, ident) {
			if err := store.SaveUser(user); err != nil {
				return nil, err
			}
		}
		return user, nil

	case errors.Is(err, ErrAccountNotFound):
		// fall through to linking or creation

	default:
		return nil, err
	}

	user, err := store.GetUserByEmail(ident.Email)
	switch {
	case err == nil:
		if !ident.EmailVerified {
			return nil, ErrAccountNotLinked
		}
	case errors.Is(err, ErrUserNotFound):
		user = &User{
			ID:      uuid.NewString(),
			Email:   ident.Email,
			Name:    ident.Name,
			Picture: ident.Picture,
		}
		if err := store.CreateUser(user); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	acct = &Account{
		Provider: ident.Provider,
		Subject:  ident.Subject,
		UserID:   user.ID,
		Email:    ident.Email,
		Profile:  ident.Raw,
	}
	if err := store.SaveAccount(acct); err != nil {
		return nil, err
	}
	return user, nil
}

// refreshUser copies identity fields onto the user record, reporting whether
// anything changed.
func refreshUser(user *User, ident *providers.Identity) bool {
	changed := false
	if ident.Email != "" && user.Email != ident.Email {
		user.Email = ident.Email
		changed = true
	}
	if ident.Name != "" && user.Name != ident.Name {
		user.Name = ident.Name
		changed = true
	}
	if ident.Picture != "" && user.Picture != ident.Picture {
		user.Picture = ident.Picture
		changed = true
	}
	return changed
}
