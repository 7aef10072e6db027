package httpstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/pelletier/go-toml/v2"

	"github.com/and161185/safety-beacon/internal/model"
)

// DefaultCachePath returns $XDG_CONFIG_HOME/safety-beacon/session.toml, falling back to ~/.config.
func DefaultCachePath() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "safety-beacon", "session.toml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "safety-beacon", "session.toml")
}

type cachedHandle struct {
	AccountID   string    `toml:"account_id"`
	Username    string    `toml:"username"`
	Email       string    `toml:"email"`
	Caretaker   string    `toml:"caretaker,omitempty"`
	Patient     string    `toml:"patient,omitempty"`
	CreatedAt   time.Time `toml:"created_at"`
	AccessToken string    `toml:"access_token"`
	ExpiresAt   time.Time `toml:"expires_at"`
}

// Cache persists the current handle on disk. It is the only client state kept between runs.
type Cache struct {
	path string
	now  func() time.Time
}

// NewCache returns a cache stored at path; an empty path means DefaultCachePath.
func NewCache(path string) *Cache {
	if path == "" {
		path = DefaultCachePath()
	}
	return &Cache{path: path, now: time.Now}
}

// Path returns the cache file location.
func (c *Cache) Path() string { return c.path }

// Load returns the cached handle. A missing, unreadable or expired cache reads as absent.
func (c *Cache) Load() (model.Handle, bool) {
	b, err := os.ReadFile(c.path)
	if err != nil {
		return model.Handle{}, false
	}
	var ch cachedHandle
	if err := toml.Unmarshal(b, &ch); err != nil {
		return model.Handle{}, false
	}
	id, err := uuid.FromString(ch.AccountID)
	if err != nil {
		return model.Handle{}, false
	}
	caretaker, err := parseRef(ch.Caretaker)
	if err != nil {
		return model.Handle{}, false
	}
	patient, err := parseRef(ch.Patient)
	if err != nil {
		return model.Handle{}, false
	}
	h := model.Handle{
		Account: model.Account{
			ID:        id,
			Username:  ch.Username,
			Email:     ch.Email,
			Caretaker: caretaker,
			Patient:   patient,
			CreatedAt: ch.CreatedAt,
		},
		AccessToken: ch.AccessToken,
		ExpiresAt:   ch.ExpiresAt,
	}
	if !h.Valid(c.now()) {
		return model.Handle{}, false
	}
	return h, true
}

// Save writes h with owner-only permissions.
func (c *Cache) Save(h model.Handle) error {
	ch := cachedHandle{
		AccountID:   h.Account.ID.String(),
		Username:    h.Account.Username,
		Email:       h.Account.Email,
		Caretaker:   refString(h.Account.Caretaker),
		Patient:     refString(h.Account.Patient),
		CreatedAt:   h.Account.CreatedAt.UTC(),
		AccessToken: h.AccessToken,
		ExpiresAt:   h.ExpiresAt.UTC(),
	}
	b, err := toml.Marshal(ch)
	if err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return fmt.Errorf("write session cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("install session cache: %w", err)
	}
	return nil
}

// Clear removes the cached handle; a missing file is not an error.
func (c *Cache) Clear() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session cache: %w", err)
	}
	return nil
}

func refString(r *model.AccountRef) string {
	if r == nil {
		return ""
	}
	return r.ID.String()
}

func parseRef(s string) (*model.AccountRef, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.FromString(s)
	if err != nil {
		return nil, err
	}
	return model.NewAccountRef(id), nil
}
