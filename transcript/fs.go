package transcript

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/setup-mpc-server/storage"
)

func newDefaultArtifacts(dir string, log *slog.Logger) (*storage.FileBackend, error) {
	fb, err := storage.NewFileBackend(filepath.Join(dir, "artifacts"), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}
	return fb, nil
}

// writeFileAtomic replaces path with data so that a crash leaves either the old or the
// new content on disk.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
