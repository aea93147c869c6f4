package services

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"uptimeboard/internal/models"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketCredentials = []byte("credentials")
	bucketSettings    = []byte("settings")

	keyAccessToken  = []byte("accessToken")
	keyRefreshToken = []byte("refreshToken")
	keyUser         = []byte("user")
	keyViewerSecret = []byte("viewerSecret")
)

// CredentialStore persists the login state between runs
type CredentialStore struct {
	db *bolt.DB
}

// OpenCredentialStore opens (or creates) the store at path
func OpenCredentialStore(path string) (*CredentialStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create storage dir: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open credential store: %w", err)
	}
	s, err := NewCredentialStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewCredentialStore wraps an open database
func NewCredentialStore(db *bolt.DB) (*CredentialStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketCredentials); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketSettings); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create credential buckets: %w", err)
	}
	return &CredentialStore{db: db}, nil
}

// Close closes the database
func (s *CredentialStore) Close() error {
	return s.db.Close()
}

// SaveAuth stores the result of a login, signup or token refresh. An empty
// refresh token or nil user keeps the stored value.
func (s *CredentialStore) SaveAuth(res *models.AuthResult) error {
	if res == nil || res.AccessToken == "" {
		return fmt.Errorf("auth result without access token")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		if err := b.Put(keyAccessToken, []byte(res.AccessToken)); err != nil {
			return err
		}
		if res.RefreshToken != "" {
			if err := b.Put(keyRefreshToken, []byte(res.RefreshToken)); err != nil {
				return err
			}
		}
		if res.User != nil {
			data, err := json.Marshal(res.User)
			if err != nil {
				return fmt.Errorf("failed to marshal user: %w", err)
			}
			return b.Put(keyUser, data)
		}
		return nil
	})
}

// AccessToken returns the stored access token, or "" if none
func (s *CredentialStore) AccessToken() string {
	return s.get(keyAccessToken)
}

// RefreshToken returns the stored refresh token, or "" if none
func (s *CredentialStore) RefreshToken() string {
	return s.get(keyRefreshToken)
}

// User returns the cached profile, or nil
func (s *CredentialStore) User() (*models.User, error) {
	var u *models.User
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCredentials).Get(keyUser)
		if data == nil {
			return nil
		}
		u = &models.User{}
		return json.Unmarshal(data, u)
	})
	return u, err
}

// IsAuthenticated reports whether an access token is stored
func (s *CredentialStore) IsAuthenticated() bool {
	return s.AccessToken() != ""
}

// Clear removes all stored credentials
func (s *CredentialStore) Clear() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCredentials)
		for _, k := range [][]byte{keyAccessToken, keyRefreshToken, keyUser} {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

// ViewerSecret returns the HMAC key for dashboard viewer tokens, creating
// and persisting one on first use
func (s *CredentialStore) ViewerSecret() ([]byte, error) {
	var secret []byte
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSettings)
		if v := b.Get(keyViewerSecret); len(v) > 0 {
			secret = append([]byte(nil), v...)
			return nil
		}
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("failed to generate viewer secret: %w", err)
		}
		log.Printf("[AUTH] Generated viewer secret (%d bytes)", len(secret))
		return b.Put(keyViewerSecret, secret)
	})
	return secret, err
}

func (s *CredentialStore) get(key []byte) string {
	var v string
	err := s.db.View(func(tx *bolt.Tx) error {
		if data := tx.Bucket(bucketCredentials).Get(key); data != nil {
			v = string(data)
		}
		return nil
	})
	if err != nil {
		log.Printf("[STORE] Reading %s: %v", key, err)
	}
	return v
}
