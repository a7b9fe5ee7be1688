package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ruteri/setup-mpc-server/interfaces"
	"golang.org/x/sync/errgroup"
)

// MultiStorageBackend implements interfaces.StorageBackend using multiple backends with fallback.
// Writes go to every available backend concurrently; reads use the first backend that has the content.
type MultiStorageBackend struct {
	backends []interfaces.StorageBackend
	log      *slog.Logger
}

// NewMultiStorageBackend creates a new multi-storage backend with fallback
func NewMultiStorageBackend(backends []interfaces.StorageBackend, logger *slog.Logger) *MultiStorageBackend {
	// If no logger is provided, create a default one
	if logger == nil {
		logger = slog.Default()
	}

	return &MultiStorageBackend{
		backends: backends,
		log:      logger,
	}
}

// Fetch tries each available backend in order and returns the first successful result.
func (m *MultiStorageBackend) Fetch(ctx context.Context, id interfaces.ContentID, contentType interfaces.ContentType) ([]byte, error) {
	start := time.Now()
	var errs []error
	contentIDStr := fmt.Sprintf("%x", id[:8])

	for _, backend := range m.backends {
		if !backend.Available(ctx) {
			m.log.Debug("Backend unavailable",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", contentIDStr))
			continue
		}

		data, err := backend.Fetch(ctx, id, contentType)
		if err == nil {
			m.log.Debug("Fetched content",
				slog.String("backend_name", backend.Name()),
				slog.String("content_id", contentIDStr),
				slog.Duration("duration", time.Since(start)))
			return data, nil
		}

		errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
		m.log.Debug("Failed to fetch from backend",
			slog.String("backend_name", backend.Name()),
			slog.String("content_id", contentIDStr),
			"err", err)
	}

	if len(errs) == 0 {
		return nil, interfaces.ErrBackendUnavailable
	}

	m.log.Error("All backends failed to fetch content",
		slog.String("content_id", contentIDStr),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	for _, err := range errs {
		if !errors.Is(err, interfaces.ErrContentNotFound) {
			return nil, fmt.Errorf("all backends failed to fetch %s: %w", contentIDStr, errors.Join(errs...))
		}
	}
	return nil, interfaces.ErrContentNotFound
}

// Store saves data to all available backends concurrently.
// It succeeds if at least one backend stored the content.
func (m *MultiStorageBackend) Store(ctx context.Context, data []byte, contentType interfaces.ContentType) (interfaces.ContentID, error) {
	start := time.Now()
	expected := interfaces.ComputeID(data)

	var (
		mu      sync.Mutex
		stored  []string
		errs    []error
		skipped int
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, backend := range m.backends {
		backend := backend
		g.Go(func() error {
			if !backend.Available(gctx) {
				m.log.Debug("Backend unavailable", slog.String("backend_name", backend.Name()))
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}

			id, err := backend.Store(gctx, data, contentType)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", backend.Name(), err))
				m.log.Debug("Failed to store to backend",
					slog.String("backend_name", backend.Name()),
					"err", err)
				return nil
			}
			if id != expected {
				// Same data must produce the same hash on every backend
				m.log.Warn("Inconsistent hashes from backends",
					slog.String("backend_name", backend.Name()),
					slog.String("expected_id", expected.String()),
					slog.String("actual_id", id.String()))
				errs = append(errs, fmt.Errorf("%s: inconsistent content id %s", backend.Name(), id))
				return nil
			}
			stored = append(stored, backend.Name())
			return nil
		})
	}
	// Goroutines never return errors, failures are collected in errs
	_ = g.Wait()

	if len(stored) == 0 {
		m.log.Error("All backends failed to store data",
			slog.Int("failed_backends", len(errs)),
			slog.Int("unavailable_backends", skipped),
			slog.Duration("duration", time.Since(start)))
		if len(errs) == 0 {
			return expected, interfaces.ErrBackendUnavailable
		}
		return expected, fmt.Errorf("all backends failed to store data: %v", errs)
	}

	m.log.Debug("Stored content",
		slog.String("content_id", expected.String()),
		slog.Any("backends", stored),
		slog.Int("failed_backends", len(errs)),
		slog.Duration("duration", time.Since(start)))

	return expected, nil
}

// Available checks if any backend is available
func (m *MultiStorageBackend) Available(ctx context.Context) bool {
	for _, backend := range m.backends {
		if backend.Available(ctx) {
			return true
		}
	}
	return false
}

// Name returns the name of this backend
func (m *MultiStorageBackend) Name() string {
	return "multi-storage"
}

// LocationURI returns a combined location URI built from all backends.
func (m *MultiStorageBackend) LocationURI() string {
	var locations []string
	for _, backend := range m.backends {
		locations = append(locations, backend.LocationURI())
	}

	return "multi:[" + strings.Join(locations, ",") + "]"
}
