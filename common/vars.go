package common

// Version is set at build time via -ldflags "-X github.com/ruteri/teefetch/common.Version=..."
var Version = "dev"

// PackageName is used as the metrics namespace and default log service name.
const PackageName = "teefetch"
