package sessionkit

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// credentialsProvider is the account namespace for password sign-ins. The
// account subject is the email itself.
const credentialsProvider = "credentials"

// CredentialsValidator checks an email/password pair and returns the matching
// user. Wrong pairs come back as ErrInvalidCredentials without revealing
// whether the email exists; any other error means the check itself failed.
type CredentialsValidator func(email, password string) (*User, error)

// NewCredentialsValidator validates passwords against the bcrypt hash stored
// on the user's credentials account.
func NewCredentialsValidator(store Store) CredentialsValidator {
	return func(email, password string) (*User, error) {
		acct, err := store.GetAccount(credentialsProvider, email)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
		if bcrypt.CompareHashAndPassword([]byte(acct.PasswordHash), []byte(password)) != nil {
			return nil, ErrInvalidCredentials
		}
		user, err := store.GetUserByID(acct.UserID)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return nil, ErrInvalidCredentials
			}
			return nil, err
		}
		return user, nil
	}
}

// RegisterUser creates a user with a password-backed credentials account.
// The email is stored exactly as submitted. Returns ErrEmailTaken when a
// user with that email already exists.
func RegisterUser(store Store, email, password, name string) (*User, error) {
	if _, err := store.GetUserByEmail(email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &User{
		ID:    uuid.NewString(),
		Email: email,
		Name:  name,
	}
	if err := store.CreateUser(user); err != nil {
		return nil, err
	}

	acct := &Account{
		Provider:     credentialsProvider,
		Subject:      email,
		UserID:       user.ID,
		Email:        email,
		PasswordHash: string(hash),
	}
	if err := store.SaveAccount(acct); err != nil {
		return nil, err
	}
	return user, nil
}
