package gallery

import (
	"context"
	"log/slog"
	"sync"

	"gridflow/internal/logging"
)

// Saver wraps a Store with fire-and-forget semantics: a failed save is
// logged and dropped, never surfaced to the pipeline that produced the
// artifact.
type Saver struct {
	store  *Store
	logger *slog.Logger
	wg     sync.WaitGroup
}

// NewSaver wraps a store. A nil logger discards failure logs.
func NewSaver(store *Store, logger *slog.Logger) *Saver {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Saver{store: store, logger: logger}
}

// SaveAsync records the artifact in the background.
func (s *Saver) SaveAsync(ctx context.Context, kind, ref string, metadata map[string]string) {
	if s == nil || s.store == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if _, err := s.store.Save(ctx, kind, ref, metadata); err != nil {
			s.logger.Warn("gallery save failed",
				logging.String("kind", kind),
				logging.Error(err))
		}
	}()
}

// Flush waits for in-flight saves. Called on daemon shutdown.
func (s *Saver) Flush() {
	if s == nil {
		return
	}
	s.wg.Wait()
}
