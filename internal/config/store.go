package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// WorkspaceIDKey is the store key holding the dialogue workspace id.
const WorkspaceIDKey = "ConversationV1_ID"

// ErrMissingWorkspaceID is returned when the store has no workspace id.
var ErrMissingWorkspaceID = errors.New("missing workspace id")

// Store is a key-value configuration store.
type Store interface {
	Get(key string) (string, bool)
}

// MapStore is a Store backed by a map.
type MapStore map[string]string

// Get implements Store.
func (m MapStore) Get(key string) (string, bool) {
	v, ok := m[key]
	return v, ok
}

// LoadStore reads key-value pairs from a dotenv file and overlays the process
// environment. A missing file is not an error.
func LoadStore(path string) (MapStore, error) {
	store := MapStore{}
	if path != "" {
		values, err := godotenv.Read(path)
		switch {
		case err == nil:
			for k, v := range values {
				store[k] = v
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			store[k] = v
		}
	}
	return store, nil
}

// WorkspaceID reads the dialogue workspace id from the store.
func WorkspaceID(store Store) (string, error) {
	v, ok := store.Get(WorkspaceIDKey)
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: key %s not set", ErrMissingWorkspaceID, WorkspaceIDKey)
	}
	return strings.TrimSpace(v), nil
}
