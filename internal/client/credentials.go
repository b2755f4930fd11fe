package client

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Credentials are the admin's basic-auth username and password.
type Credentials struct {
	Username string
	Password string
}

// Header renders the Authorization header value.
func (c Credentials) Header() string {
	return "Basic " + c.blob()
}

func (c Credentials) blob() string {
	return base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.Password))
}

func parseBlob(raw string) (Credentials, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(raw))
	if err != nil {
		return Credentials{}, fmt.Errorf("decode credentials: %w", err)
	}
	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok || user == "" {
		return Credentials{}, errors.New("malformed credentials")
	}
	return Credentials{Username: user, Password: pass}, nil
}

// CredentialStore persists credentials between CLI invocations.
// Load reports ok=false when nothing is stored.
type CredentialStore interface {
	Load() (Credentials, bool, error)
	Save(Credentials) error
	Clear() error
}

// FileCredentialStore keeps the encoded blob in a single file readable only
// by its owner.
type FileCredentialStore struct {
	Path string
}

// DefaultCredentialPath is ~/.festive-quiz/credentials.
func DefaultCredentialPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".festive-quiz-credentials"
	}
	return filepath.Join(home, ".festive-quiz", "credentials")
}

func (s FileCredentialStore) Load() (Credentials, bool, error) {
	raw, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return Credentials{}, false, nil
	}
	if err != nil {
		return Credentials{}, false, err
	}
	creds, err := parseBlob(string(raw))
	if err != nil {
		return Credentials{}, false, err
	}
	return creds, true, nil
}

func (s FileCredentialStore) Save(creds Credentials) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(s.Path, []byte(creds.blob()), 0o600); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file.
	return os.Chmod(s.Path, 0o600)
}

func (s FileCredentialStore) Clear() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
