package storage

import (
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/ruteri/setup-mpc-server/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStorageBackendFactory_StorageBackendFor(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewStorageBackendFactory(logger)
	dir := t.TempDir()

	tests := []struct {
		name         string
		uri          string
		expectedType interface{}
		expectError  bool
	}{
		{
			name:         "file backend",
			uri:          "file://" + filepath.Join(dir, "artifacts"),
			expectedType: &FileBackend{},
		},
		{
			name:         "s3 backend with credentials",
			uri:          "s3://AKIA:secret@ceremony-bucket/transcripts/?region=eu-west-1",
			expectedType: &S3Backend{},
		},
		{
			name:         "ipfs backend",
			uri:          "ipfs://localhost:5001/setup-mpc?timeout=10s",
			expectedType: &IPFSBackend{},
		},
		{
			name:         "vault backend",
			uri:          "vault://root-token@localhost:8200/secret/ceremony?tls=false",
			expectedType: &VaultBackend{},
		},
		{
			name:        "ipfs backend with bad timeout",
			uri:         "ipfs://localhost:5001/?timeout=soon",
			expectError: true,
		},
		{
			name:        "s3 without bucket",
			uri:         "s3:///path",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			location, err := interfaces.NewStorageBackendLocation(tt.uri)
			require.NoError(t, err)

			backend, err := factory.StorageBackendFor(location)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.expectedType, backend)
		})
	}
}

func TestStorageBackendLocation_RejectsUnknownScheme(t *testing.T) {
	_, err := interfaces.NewStorageBackendLocation("github://owner/repo")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)
}

func TestStorageBackendFactory_CreateMultiBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewStorageBackendFactory(logger)

	good, err := interfaces.NewStorageBackendLocation("file://" + t.TempDir())
	require.NoError(t, err)
	bad, err := interfaces.NewStorageBackendLocation("ipfs://localhost:5001/?timeout=never")
	require.NoError(t, err)

	backend, err := factory.CreateMultiBackend([]interfaces.StorageBackendLocation{good, bad})
	require.NoError(t, err)
	assert.IsType(t, &MultiStorageBackend{}, backend)
	assert.Contains(t, backend.LocationURI(), good.Raw)

	_, err = factory.CreateMultiBackend([]interfaces.StorageBackendLocation{bad})
	assert.Error(t, err)
}

func TestStorageBackendFactory_WithTLSAuth(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loadErr := errors.New("no certificate")
	factory := NewStorageBackendFactory(logger).WithTLSAuth(func() (tls.Certificate, error) {
		return tls.Certificate{}, loadErr
	})

	location, err := interfaces.NewStorageBackendLocation("vault://localhost:8200/secret/ceremony")
	require.NoError(t, err)
	_, err = factory.StorageBackendFor(location)
	assert.ErrorIs(t, err, loadErr)

	// Non-vault backends ignore client certificates.
	location, err = interfaces.NewStorageBackendLocation("file://" + t.TempDir())
	require.NoError(t, err)
	_, err = factory.StorageBackendFor(location)
	assert.NoError(t, err)
}
