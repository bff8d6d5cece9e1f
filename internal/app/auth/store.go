package auth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CredentialStore persists the single authoritative Credential.
type CredentialStore interface {
	Load() (*Credential, error)
	Save(*Credential) error
}

type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Path() string {
	return s.path
}

// Load reads the cached credential. os.ErrNotExist is returned as is so callers
// can tell an absent cache from a broken one.
func (s *FileStore) Load() (*Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}

	var cred Credential
	if err = json.Unmarshal(data, &cred); err != nil {
		return nil, fmt.Errorf("decode credential cache %q: %w", s.path, err)
	}

	return &cred, nil
}

// Save replaces the cache file atomically with the given credential.
func (s *FileStore) Save(cred *Credential) error {
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temporary credential file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credential: %w", err)
	}
	if err = tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod credential: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close credential: %w", err)
	}

	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace credential cache: %w", err)
	}

	return nil
}
