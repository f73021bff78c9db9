package testsupport

import (
	"testing"

	"rewind/internal/config"
	"rewind/internal/store"
)

// MustOpenStore opens a session store rooted in the config's data
// directory and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()
	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return s
}
