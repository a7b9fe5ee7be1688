package common

// Version is set at build time with -ldflags "-X github.com/ruteri/setup-mpc-server/common.Version=..."
var Version = "dev"

// PackageName prefixes exported metrics.
const PackageName = "setup_mpc"
