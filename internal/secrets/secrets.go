// Package secrets resolves credentials that should not live in plain
// configuration. Values already present in the environment win; otherwise
// they are read from the OS keyring under the "asksql" service.
package secrets

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/99designs/keyring"

	"github.com/asksql/asksql/internal/config"
)

const ServiceName = "asksql"

const (
	KeyAIAPIKey       = "ai_api_key"
	KeyDatabaseDSN    = "database_dsn"
	KeyObjectStoreKey = "objectstore_secret_key"
)

var ErrUnknownKey = errors.New("unknown secret name")

// Store is the subset of keyring.Keyring used here.
type Store interface {
	Get(key string) (keyring.Item, error)
	Set(item keyring.Item) error
	Remove(key string) error
}

// OpenKeyring opens the platform keyring. The encrypted-file backend is
// excluded so a missing OS keychain is reported instead of prompting.
func OpenKeyring() (keyring.Keyring, error) {
	allowed := make([]keyring.BackendType, 0)
	for _, backend := range keyring.AvailableBackends() {
		if backend == keyring.FileBackend {
			continue
		}
		allowed = append(allowed, backend)
	}
	if len(allowed) == 0 {
		return nil, errors.New("no OS keyring backend is available")
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName:     ServiceName,
		AllowedBackends: allowed,
		PassPrefix:      ServiceName,
		WinCredPrefix:   ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("open keyring: %w", err)
	}
	return ring, nil
}

type Resolver struct {
	mu    sync.Mutex
	store Store
}

func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Names lists the secret names accepted by Get and Set.
func Names() []string {
	names := make([]string, 0, len(knownKeys))
	for name := range knownKeys {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var knownKeys = map[string]struct{}{
	KeyAIAPIKey:       {},
	KeyDatabaseDSN:    {},
	KeyObjectStoreKey: {},
}

// Get returns the stored value, or "" when the keyring has no entry.
func (r *Resolver) Get(name string) (string, error) {
	if _, ok := knownKeys[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	item, err := r.store.Get(name)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}
	return string(item.Data), nil
}

func (r *Resolver) Set(name, value string) error {
	if _, ok := knownKeys[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("secret %s must not be empty", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Set(keyring.Item{Key: name, Data: []byte(value), Label: ServiceName + " " + name}); err != nil {
		return fmt.Errorf("store secret %s: %w", name, err)
	}
	return nil
}

func (r *Resolver) Delete(name string) error {
	if _, ok := knownKeys[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Remove(name); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("remove secret %s: %w", name, err)
	}
	return nil
}

// Apply fills empty credential fields of cfg from the keyring. Fields that
// were set through the environment are left untouched. It reports the names
// of the fields it filled.
func (r *Resolver) Apply(cfg *config.Config, envSet func(key string) bool) ([]string, error) {
	targets := []struct {
		name   string
		envKey string
		field  *string
	}{
		{KeyAIAPIKey, "ASKSQL_AI_API_KEY", &cfg.AI.APIKey},
		{KeyDatabaseDSN, "ASKSQL_DATABASE_DSN", &cfg.Database.DSN},
		{KeyObjectStoreKey, "ASKSQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey},
	}

	filled := make([]string, 0, len(targets))
	for _, target := range targets {
		if envSet != nil && envSet(target.envKey) {
			continue
		}
		value, err := r.Get(target.name)
		if err != nil {
			return filled, err
		}
		if value == "" {
			continue
		}
		*target.field = value
		filled = append(filled, target.name)
	}
	return filled, nil
}
