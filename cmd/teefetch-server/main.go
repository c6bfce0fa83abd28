package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/ruteri/teefetch/api/attestationhandler"
	"github.com/ruteri/teefetch/api/fetchhandler"
	"github.com/ruteri/teefetch/cmd/flags"
	"github.com/ruteri/teefetch/common"
	"github.com/ruteri/teefetch/cryptoutils"
	"github.com/ruteri/teefetch/httpserver"
	"github.com/ruteri/teefetch/kms"
	"github.com/ruteri/teefetch/metrics"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "teefetch-server",
		Usage: "Serve signed, attested HTTP fetches from inside a TEE",
		Flags: slices.Concat(flags.ServerFlags, flags.CommonFlags, []cli.Flag{flags.LogServiceFlagFn("teefetch-server")}),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			attestationType, err := flags.AttestationType(cCtx)
			if err != nil {
				logger.Error("Invalid attestation type", "err", err)
				return err
			}

			// Load the signing key
			keySource, err := flags.KeySource(cCtx, logger)
			if err != nil {
				logger.Error("Failed to configure key source", "err", err)
				return err
			}

			loadCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			material, err := keySource.Fetch(loadCtx)
			cancel()
			if err != nil {
				logger.Error("Failed to load signing key", "err", err, "source", keySource.LocationURI())
				return err
			}

			signer, err := kms.NewSigningKey(material)
			clear(material)
			if err != nil {
				logger.Error("Failed to parse signing key", "err", err)
				return err
			}

			logger.Info("Signing key loaded",
				"address", signer.Address().Hex(),
				"source", keySource.Name())

			provider, err := flags.AttestationProvider(cCtx, attestationType)
			if err != nil {
				logger.Error("Failed to create attestation provider", "err", err)
				return err
			}
			if attestationType == cryptoutils.DummyAttestation {
				logger.Warn("Serving dummy attestations, verifiers gain no hardware guarantees")
			}

			metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}
			fetchMetrics := metrics.NewFetchMetrics(common.PackageName, metricsSrv.Registry)

			fetchHandler := fetchhandler.NewHandler(signer, fetchhandler.Options{
				UpstreamTimeout: cCtx.Duration(flags.UpstreamTimeoutFlag.Name),
				MaxBodyBytes:    cCtx.Int64(flags.MaxBodyBytesFlag.Name),
				FollowRedirects: cCtx.Bool(flags.FollowRedirectsFlag.Name),
				AttestationType: attestationType,
				Metrics:         fetchMetrics,
			}, logger)
			attestationHandler := attestationhandler.NewHandler(provider, signer.PublicKey(), fetchMetrics, logger)

			server, err := httpserver.New(flags.ConfigureServer(cCtx, logger), metricsSrv, fetchHandler, attestationHandler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}

			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")

			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
