package auth

import (
	"os"
	"time"
)

// EnvironmentStore reads the session from environment variables. It is
// read-only and always last in the manager's fallback chain.
type EnvironmentStore struct{}

func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreReadOnly
}

func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	cookie := os.Getenv("RUNWAY_SESSION_COOKIE")
	if cookie == "" {
		return nil, ErrProfileNotFound
	}
	if name == "" {
		name = "default"
	}
	return &Profile{
		Name:          name,
		SessionCookie: cookie,
		UserAgent:     os.Getenv("RUNWAY_USER_AGENT"),
		LastModified:  time.Now(),
	}, nil
}

func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreReadOnly
}

func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("RUNWAY_SESSION_COOKIE") != ""
}
