package credential

import (
	"fmt"

	"github.com/99designs/keyring"
)

const (
	ServiceName = "mailscan-to-drive"
	// APIKeyName holds the Stable mail API key.
	APIKeyName = "stable-api-key"
)

// ErrNotFound is returned when the keyring has no entry for a key.
var ErrNotFound = keyring.ErrKeyNotFound

// Options tune where credentials live. The zero value uses the OS keyring
// with an encrypted file as the last resort.
type Options struct {
	FileDir  string
	FileOnly bool
	// FilePassword encrypts the file backend.
	FilePassword string
}

type Store struct {
	cfg keyring.Config
}

func New(opts Options) *Store {
	fileDir := opts.FileDir
	if fileDir == "" {
		fileDir = "~/.mailscan-to-drive/credentials"
	}
	password := opts.FilePassword
	if password == "" {
		password = "mailscan-to-drive-file-key"
	}

	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if opts.FileOnly {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	return &Store{cfg: keyring.Config{
		ServiceName:              ServiceName,
		AllowedBackends:          backends,
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(password),
		KeychainTrustApplication: true,
	}}
}

func (s *Store) open() (keyring.Keyring, error) {
	ring, err := keyring.Open(s.cfg)
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a credential value by key.
func (s *Store) Get(key string) (string, error) {
	ring, err := s.open()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}

	return string(item.Data), nil
}

// Set stores a credential value by key.
func (s *Store) Set(key string, value string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	err = ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: ServiceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}

	return nil
}

// Delete removes a credential by key.
func (s *Store) Delete(key string) error {
	ring, err := s.open()
	if err != nil {
		return err
	}

	if err := ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}

	return nil
}
