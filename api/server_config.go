package api

import (
	"log/slog"
	"time"
)

// HTTPServerConfig contains the configuration of the ceremony HTTP server.
type HTTPServerConfig struct {
	// ListenAddr is the address the participant API listens on.
	ListenAddr string

	// MetricsAddr is the address of the Prometheus endpoint. Empty disables it.
	MetricsAddr string

	// EnablePprof mounts net/http/pprof under /debug.
	EnablePprof bool

	Log *slog.Logger

	// DrainDuration is how long /drain keeps reporting not ready before the drain completes.
	DrainDuration time.Duration

	// GracefulShutdownDuration bounds in-flight requests during shutdown.
	GracefulShutdownDuration time.Duration

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MaxArtifactSize bounds contribution uploads. Zero means MaxArtifactSize.
	MaxArtifactSize int64
}
