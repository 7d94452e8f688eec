// Package fs stores users and accounts as JSON files on disk. It is meant
// for development and small single-node deployments; anything bigger should
// use the gorm or gcloud stores.
package fs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/halcyonic/sessionkit"
)

// Store implements sessionkit.Store on a directory tree:
//
//	users/<id>.json
//	users_by_email/<email>.json
//	accounts/<provider>_<subject>.json
type Store struct {
	Root string
}

func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("storage root required")
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("error creating storage root: %w", err)
	}
	return &Store{Root: root}, nil
}

type userRecord struct {
	sessionkit.User
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type emailIndex struct {
	UserID string `json:"user_id"`
}

func (s *Store) userPath(id string) string {
	return filepath.Join(s.Root, "users", safeKey(id)+".json")
}

func (s *Store) emailPath(email string) string {
	return filepath.Join(s.Root, "users_by_email", safeKey(email)+".json")
}

func (s *Store) accountPath(provider, subject string) string {
	return filepath.Join(s.Root, "accounts", safeKey(provider+"_"+subject)+".json")
}

// safeKey makes a value usable as a filename without allowing path traversal.
func safeKey(key string) string {
	key = strings.ReplaceAll(key, ":", "_")
	key = strings.ReplaceAll(key, "/", "_")
	return filepath.Base(key)
}

func (s *Store) CreateUser(user *sessionkit.User) error {
	if user.ID == "" {
		return fmt.Errorf("user ID required")
	}
	if _, err := os.Stat(s.userPath(user.ID)); err == nil {
		return fmt.Errorf("user %s already exists", user.ID)
	}
	return s.SaveUser(user)
}

func (s *Store) GetUserByID(id string) (*sessionkit.User, error) {
	var rec userRecord
	if err := readJSONFile(s.userPath(id), &rec); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("user %s: %w", id, sessionkit.ErrUserNotFound)
		}
		return nil, err
	}
	return &rec.User, nil
}

func (s *Store) GetUserByEmail(email string) (*sessionkit.User, error) {
	var idx emailIndex
	if err := readJSONFile(s.emailPath(email), &idx); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("email %s: %w", email, sessionkit.ErrUserNotFound)
		}
		return nil, err
	}
	return s.GetUserByID(idx.UserID)
}

func (s *Store) SaveUser(user *sessionkit.User) error {
	rec := userRecord{User: *user, CreatedAt: time.Now(), UpdatedAt: time.Now()}

	var old userRecord
	hadOld := readJSONFile(s.userPath(user.ID), &old) == nil
	if hadOld {
		rec.CreatedAt = old.CreatedAt
	}

	if err := writeJSONFile(s.userPath(user.ID), rec); err != nil {
		return err
	}

	// Keep the email index pointing at the current email only.
	if hadOld && old.Email != "" && old.Email != user.Email {
		os.Remove(s.emailPath(old.Email))
	}
	if user.Email != "" {
		return writeJSONFile(s.emailPath(user.Email), emailIndex{UserID: user.ID})
	}
	return nil
}

func (s *Store) GetAccount(provider, subject string) (*sessionkit.Account, error) {
	var acct sessionkit.Account
	if err := readJSONFile(s.accountPath(provider, subject), &acct); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("account %s: %w",
				sessionkit.AccountKey(provider, subject), sessionkit.ErrAccountNotFound)
		}
		return nil, err
	}
	return &acct, nil
}

func (s *Store) SaveAccount(acct *sessionkit.Account) error {
	if acct.Provider == "" || acct.Subject == "" {
		return fmt.Errorf("account provider and subject required")
	}

	saved := *acct
	saved.UpdatedAt = time.Now()
	saved.CreatedAt = saved.UpdatedAt
	if old, err := s.GetAccount(acct.Provider, acct.Subject); err == nil {
		saved.CreatedAt = old.CreatedAt
	}

	return writeJSONFile(s.accountPath(acct.Provider, acct.Subject), saved)
}

func (s *Store) ListUserAccounts(userID string) ([]*sessionkit.Account, error) {
	dir := filepath.Join(s.Root, "accounts")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*sessionkit.Account{}, nil
		}
		return nil, err
	}

	var accounts []*sessionkit.Account
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var acct sessionkit.Account
		if err := readJSONFile(filepath.Join(dir, entry.Name()), &acct); err != nil {
			continue
		}
		if acct.UserID == userID {
			accounts = append(accounts, &acct)
		}
	}
	return accounts, nil
}

func readJSONFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func writeJSONFile(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	return writeAtomicFile(path, data)
}

// writeAtomicFile writes data through a temp file and a rename, so a crash
// never leaves a half-written record behind.
func writeAtomicFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write to temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
