// Package flags holds the command line flags shared by the ceremony binaries.
package flags

import (
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/setup-mpc-server/api"
	"github.com/ruteri/setup-mpc-server/common"
	"github.com/ruteri/setup-mpc-server/config"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *api.HTTPServerConfig {
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &api.HTTPServerConfig{
		ListenAddr:               ListenAddr(cCtx),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             60 * time.Second,
		MaxArtifactSize:          cCtx.Int64(MaxArtifactSizeFlag.Name),
	}
}

// ListenAddr resolves the API listen address. PORT, when set, replaces the port of --listen-addr.
func ListenAddr(cCtx *cli.Context) string {
	addr := cCtx.String(ListenAddrFlag.Name)
	if !cCtx.IsSet(PortFlag.Name) {
		return addr
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = ""
	}
	return net.JoinHostPort(host, fmt.Sprint(cCtx.Int(PortFlag.Name)))
}

// CeremonyConfig loads --config, if given, and applies the ceremony flags set on the
// command line or through the environment on top of it.
func CeremonyConfig(cCtx *cli.Context) (config.Ceremony, error) {
	cfg := config.Default()
	if path := cCtx.String(ConfigFlag.Name); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return config.Ceremony{}, err
		}
		cfg = loaded
	}

	if cCtx.IsSet(CapacityFlag.Name) {
		cfg.Capacity = cCtx.Int(CapacityFlag.Name)
	}
	if cCtx.IsSet(StartDelayFlag.Name) {
		cfg.StartDelay = cCtx.Duration(StartDelayFlag.Name)
		cfg.StartTime = time.Time{}
	}
	if cCtx.IsSet(StartTimeFlag.Name) {
		cfg.StartTime = *cCtx.Timestamp(StartTimeFlag.Name)
	}
	if cCtx.IsSet(StorePathFlag.Name) {
		cfg.StorePath = cCtx.String(StorePathFlag.Name)
	}
	if cCtx.IsSet(ArtifactStoreFlag.Name) {
		cfg.ArtifactStores = cCtx.StringSlice(ArtifactStoreFlag.Name)
	}
	if cCtx.IsSet(YouIndicesFlag.Name) {
		indices, err := config.ParseIndices(cCtx.String(YouIndicesFlag.Name))
		if err != nil {
			return config.Ceremony{}, fmt.Errorf("--%s: %w", YouIndicesFlag.Name, err)
		}
		cfg.YouIndices = indices
	}
	if cCtx.IsSet(TurnTimeoutFlag.Name) {
		cfg.TurnTimeout = cCtx.Duration(TurnTimeoutFlag.Name)
	}

	if err := cfg.Validate(); err != nil {
		return config.Ceremony{}, err
	}
	return cfg, nil
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "0.0.0.0:80",
	Usage:   "address to listen on for the participant API",
	EnvVars: []string{"LISTEN_ADDR"},
}

var PortFlag = &cli.IntFlag{
	Name:    "port",
	Usage:   "port to listen on, overrides the port of --listen-addr",
	EnvVars: []string{"PORT"},
}

var ConfigFlag = &cli.StringFlag{
	Name:    "config",
	Usage:   "TOML file with a [ceremony] section",
	EnvVars: []string{"CEREMONY_CONFIG"},
}

var CapacityFlag = &cli.IntFlag{
	Name:  "capacity",
	Value: config.DefaultCapacity,
	Usage: "maximum number of participants",
}

var StartDelayFlag = &cli.DurationFlag{
	Name:  "start-delay",
	Value: config.DefaultStartDelay,
	Usage: "start the ceremony this long after boot",
}

var StartTimeFlag = &cli.TimestampFlag{
	Name:   "start-time",
	Layout: time.RFC3339,
	Usage:  "absolute ceremony start (RFC 3339), overrides --start-delay",
}

var StorePathFlag = &cli.StringFlag{
	Name:    "store-path",
	Value:   config.DefaultStorePath,
	Usage:   "directory of the transcript store",
	EnvVars: []string{"STORE_PATH"},
}

var ArtifactStoreFlag = &cli.StringSliceFlag{
	Name:    "artifact-store",
	Usage:   "artifact backend URI (file://, s3://, ipfs://, vault://), repeatable; defaults to <store-path>/artifacts",
	EnvVars: []string{"ARTIFACT_STORES"},
}

var YouIndicesFlag = &cli.StringFlag{
	Name:    "you-indices",
	Usage:   "comma separated roster positions shown with the demo 'you' role",
	EnvVars: []string{"YOU_INDICES", "YOU_INDICIES"},
}

var VaultClientCertFlag = &cli.StringFlag{
	Name:    "vault-client-cert",
	Usage:   "PEM client certificate for vault:// artifact stores using TLS auth",
	EnvVars: []string{"VAULT_CLIENT_CERT"},
}

var VaultClientKeyFlag = &cli.StringFlag{
	Name:    "vault-client-key",
	Usage:   "PEM key for --vault-client-cert",
	EnvVars: []string{"VAULT_CLIENT_KEY"},
}

var TurnTimeoutFlag = &cli.DurationFlag{
	Name:  "turn-timeout",
	Usage: "invalidate a participant that has not submitted this long after beginning its turn, 0 disables",
}

var MaxArtifactSizeFlag = &cli.Int64Flag{
	Name:  "max-artifact-size",
	Value: api.MaxArtifactSize,
	Usage: "maximum contribution upload in bytes",
}

var ServerAddrFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:80",
	Usage:   "ceremony server base URL",
	EnvVars: []string{"CEREMONY_SERVER"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: "setup-mpc-server",
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics, empty disables",
}

var LogFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ServerFlags = []cli.Flag{
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
	ListenAddrFlag,
	PortFlag,
	MaxArtifactSizeFlag,
}

var CeremonyFlags = []cli.Flag{
	ConfigFlag,
	CapacityFlag,
	StartDelayFlag,
	StartTimeFlag,
	StorePathFlag,
	ArtifactStoreFlag,
	VaultClientCertFlag,
	VaultClientKeyFlag,
	YouIndicesFlag,
	TurnTimeoutFlag,
}
