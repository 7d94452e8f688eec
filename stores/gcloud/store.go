//go:build !wasm
// +build !wasm

package gcloud

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/datastore"
	"google.golang.org/api/iterator"

	"github.com/halcyonic/sessionkit"
)

// Kind constants for Datastore entities
const (
	KindUser    = "User"
	KindAccount = "Account"
)

// Store implements sessionkit.Store using Google Cloud Datastore
type Store struct {
	client    *datastore.Client
	namespace string
	ctx       context.Context
}

// NewStore creates a Datastore-backed store in the given namespace.
func NewStore(client *datastore.Client, namespace string) *Store {
	return &Store{
		client:    client,
		namespace: namespace,
		ctx:       context.Background(),
	}
}

// WithContext returns a copy of the store with the given context
func (s *Store) WithContext(ctx context.Context) *Store {
	return &Store{
		client:    s.client,
		namespace: s.namespace,
		ctx:       ctx,
	}
}

func (s *Store) namespacedKey(kind, name string) *datastore.Key {
	key := datastore.NameKey(kind, name, nil)
	key.Namespace = s.namespace
	return key
}

func (s *Store) CreateUser(user *sessionkit.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID required")
	}
	key := s.namespacedKey(KindUser, user.ID)

	now := time.Now()
	entity := &UserEntity{
		Key:       key,
		Email:     user.Email,
		Name:      user.Name,
		Picture:   user.Picture,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.client.Put(s.ctx, key, entity)
	return err
}

func (s *Store) GetUserByID(id string) (*sessionkit.User, error) {
	key := s.namespacedKey(KindUser, id)
	var entity UserEntity
	if err := s.client.Get(s.ctx, key, &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, fmt.Errorf("user %s: %w", id, sessionkit.ErrUserNotFound)
		}
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *Store) GetUserByEmail(email string) (*sessionkit.User, error) {
	query := datastore.NewQuery(KindUser).
		FilterField("email", "=", email).
		Limit(1)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	it := s.client.Run(s.ctx, query)
	var entity UserEntity
	_, err := it.Next(&entity)
	if err == iterator.Done {
		return nil, fmt.Errorf("email %s: %w", email, sessionkit.ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return entity.ToUser(), nil
}

func (s *Store) SaveUser(user *sessionkit.User) error {
	key := s.namespacedKey(KindUser, user.ID)

	// Get existing to preserve CreatedAt
	var existing UserEntity
	err := s.client.Get(s.ctx, key, &existing)
	if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}

	entity := &UserEntity{
		Key:       key,
		Email:     user.Email,
		Name:      user.Name,
		Picture:   user.Picture,
		CreatedAt: existing.CreatedAt,
		UpdatedAt: time.Now(),
	}
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = entity.UpdatedAt
	}

	_, err = s.client.Put(s.ctx, key, entity)
	return err
}

func (s *Store) GetAccount(provider, subject string) (*sessionkit.Account, error) {
	key := s.namespacedKey(KindAccount, sessionkit.AccountKey(provider, subject))
	var entity AccountEntity
	if err := s.client.Get(s.ctx, key, &entity); err != nil {
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			return nil, fmt.Errorf("account %s: %w",
				sessionkit.AccountKey(provider, subject), sessionkit.ErrAccountNotFound)
		}
		return nil, err
	}
	return entity.ToAccount(), nil
}

func (s *Store) SaveAccount(acct *sessionkit.Account) error {
	if acct.Provider == "" || acct.Subject == "" {
		return fmt.Errorf("account provider and subject required")
	}
	key := s.namespacedKey(KindAccount, sessionkit.AccountKey(acct.Provider, acct.Subject))

	var existing AccountEntity
	err := s.client.Get(s.ctx, key, &existing)
	if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
		return err
	}

	entity := AccountToEntity(acct, key)
	entity.UpdatedAt = time.Now()
	entity.CreatedAt = existing.CreatedAt
	if entity.CreatedAt.IsZero() {
		entity.CreatedAt = entity.UpdatedAt
	}

	_, err = s.client.Put(s.ctx, key, entity)
	return err
}

func (s *Store) ListUserAccounts(userID string) ([]*sessionkit.Account, error) {
	query := datastore.NewQuery(KindAccount).
		FilterField("user_id", "=", userID)
	if s.namespace != "" {
		query = query.Namespace(s.namespace)
	}

	var accounts []*sessionkit.Account
	it := s.client.Run(s.ctx, query)
	for {
		var entity AccountEntity
		_, err := it.Next(&entity)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, entity.ToAccount())
	}
	return accounts, nil
}
