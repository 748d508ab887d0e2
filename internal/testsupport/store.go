package testsupport

import (
	"testing"

	"gridflow/internal/config"
	"gridflow/internal/gallery"
)

// MustOpenGallery opens a gallery.Store for tests and registers cleanup.
func MustOpenGallery(t testing.TB, cfg *config.Config) *gallery.Store {
	t.Helper()

	store, err := gallery.Open(cfg)
	if err != nil {
		t.Fatalf("gallery.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
