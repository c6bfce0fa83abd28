package flags

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/teefetch/api"
	"github.com/ruteri/teefetch/common"
	"github.com/ruteri/teefetch/cryptoutils"
	"github.com/ruteri/teefetch/interfaces"
	"github.com/ruteri/teefetch/kms"
	"github.com/ruteri/teefetch/storage"
	"github.com/urfave/cli/v2"
)

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String("log-service")

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
	upstreamTimeout := cCtx.Duration(UpstreamTimeoutFlag.Name)

	return &api.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		AttestationAddr:          cCtx.String(AttestationAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             upstreamTimeout + 30*time.Second,
	}
}

// AttestationType validates the --attestation-type flag.
func AttestationType(cCtx *cli.Context) (string, error) {
	attestationType, err := cryptoutils.AttestationTypeFromString(cCtx.String(AttestationTypeFlag.Name))
	if err != nil {
		return "", fmt.Errorf("invalid --%s: %w", AttestationTypeFlag.Name, err)
	}
	return attestationType, nil
}

// KeySource builds the signing key source from --signing-key. With
// --signing-key-threshold set every location holds one share of the key,
// otherwise the locations are fallbacks for the same key.
func KeySource(cCtx *cli.Context, logger *slog.Logger) (interfaces.KeySource, error) {
	locations := cCtx.StringSlice(SigningKeyFlag.Name)
	threshold := cCtx.Int(SigningKeyThresholdFlag.Name)
	factory := storage.NewKeySourceFactory(logger)

	if threshold == 0 {
		return factory.CreateMultiSource(locations)
	}

	sources := make([]interfaces.KeySource, 0, len(locations))
	for _, location := range locations {
		source, err := factory.KeySourceFor(location)
		if err != nil {
			return nil, err
		}
		sources = append(sources, source)
	}
	return kms.NewShareKeySource(sources, threshold, logger)
}

// AttestationProvider builds the document producer for the configured type.
func AttestationProvider(cCtx *cli.Context, attestationType string) (interfaces.AttestationProvider, error) {
	remoteAddr := cCtx.String(RemoteAttestationAddrFlag.Name)
	if remoteAddr == "" {
		return cryptoutils.AttestationProviderFor(attestationType)
	}
	if attestationType != cryptoutils.DCAPAttestation {
		return nil, fmt.Errorf("--%s requires --%s=%s", RemoteAttestationAddrFlag.Name, AttestationTypeFlag.Name, cryptoutils.DCAPAttestation)
	}
	return &cryptoutils.RemoteAttestationProvider{Address: remoteAddr}, nil
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: fmt.Sprintf("0.0.0.0:%d", api.DefaultFetchPort),
	Usage: "address to listen on for the fetch API",
}
var AttestationAddrFlag = &cli.StringFlag{
	Name:  "attestation-addr",
	Value: fmt.Sprintf("0.0.0.0:%d", api.DefaultAttestationPort),
	Usage: "address to serve attestation documents on, empty to disable",
}
var SigningKeyFlag = &cli.StringSliceFlag{
	Name:     "signing-key",
	Required: true,
	EnvVars:  []string{"TEEFETCH_SIGNING_KEY"},
	Usage:    "location of the signing key material: path, file://, vault:// or s3:// URI. Repeat for fallbacks",
}
var SigningKeyThresholdFlag = &cli.IntFlag{
	Name:    "signing-key-threshold",
	EnvVars: []string{"TEEFETCH_SIGNING_KEY_THRESHOLD"},
	Usage:   "treat each --signing-key location as one key share and combine this many of them",
}
var AttestationTypeFlag = &cli.StringFlag{
	Name:  "attestation-type",
	Value: cryptoutils.NitroAttestation,
	Usage: "attestation type: nitro, qemu-tdx or dummy",
}
var RemoteAttestationAddrFlag = &cli.StringFlag{
	Name:  "remote-attestation-addr",
	Usage: "base URL of a quote-provider sidecar serving /attest/<pubkey>, for qemu-tdx without local quote access",
}
var UpstreamTimeoutFlag = &cli.DurationFlag{
	Name:  "upstream-timeout",
	Value: 30 * time.Second,
	Usage: "timeout for upstream fetches",
}
var MaxBodyBytesFlag = &cli.Int64Flag{
	Name:  "max-body-bytes",
	Value: 10 << 20,
	Usage: "largest upstream response body that will be signed",
}
var FollowRedirectsFlag = &cli.BoolFlag{
	Name:  "follow-redirects",
	Value: false,
	Usage: "follow upstream redirects instead of signing the redirect response",
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

var LogServiceFlagFn = func(service string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:  "log-service",
		Value: service,
		Usage: "add 'service' tag to logs",
	}
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait for load balancers after draining on shutdown",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	AttestationAddrFlag,
	SigningKeyFlag,
	SigningKeyThresholdFlag,
	AttestationTypeFlag,
	RemoteAttestationAddrFlag,
	UpstreamTimeoutFlag,
	MaxBodyBytesFlag,
	FollowRedirectsFlag,
}
