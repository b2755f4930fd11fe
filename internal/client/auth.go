package client

import "sync"

// AuthContext holds the current admin credentials for a client. Stored
// credentials are loaded lazily on first use.
type AuthContext struct {
	store CredentialStore

	mu     sync.Mutex
	loaded bool
	creds  *Credentials
}

func NewAuthContext(store CredentialStore) *AuthContext {
	return &AuthContext{store: store}
}

// Credentials returns the active credentials, if any.
func (a *AuthContext) Credentials() (Credentials, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.loadLocked(); err != nil {
		return Credentials{}, false, err
	}
	if a.creds == nil {
		return Credentials{}, false, nil
	}
	return *a.creds, true, nil
}

func (a *AuthContext) HasCredentials() bool {
	_, ok, err := a.Credentials()
	return ok && err == nil
}

// Set activates creds and persists them.
func (a *AuthContext) Set(creds Credentials) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded = true
	a.creds = &creds
	if a.store == nil {
		return nil
	}
	return a.store.Save(creds)
}

// Clear forgets the credentials in memory and in the store.
func (a *AuthContext) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loaded = true
	a.creds = nil
	if a.store == nil {
		return nil
	}
	return a.store.Clear()
}

func (a *AuthContext) loadLocked() error {
	if a.loaded {
		return nil
	}
	a.loaded = true
	if a.store == nil {
		return nil
	}
	creds, ok, err := a.store.Load()
	if err != nil {
		return err
	}
	if ok {
		a.creds = &creds
	}
	return nil
}
