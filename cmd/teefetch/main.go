package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ruteri/teefetch/api"
	"github.com/ruteri/teefetch/api/attestationhandler"
	"github.com/ruteri/teefetch/api/fetchhandler"
	"github.com/ruteri/teefetch/cmd/flags"
	"github.com/ruteri/teefetch/cryptoutils"
	"github.com/ruteri/teefetch/interfaces"
	"github.com/ruteri/teefetch/kms"
	"github.com/ruteri/teefetch/storage"
	"github.com/urfave/cli/v2"
)

var flagIP = &cli.StringFlag{
	Name:     "ip",
	Required: true,
	Usage:    "address of the TEE instance; a URL with scheme overrides the default ports",
}
var flagURL = &cli.StringFlag{
	Name:     "url",
	Required: true,
	Usage:    "URL to fetch",
}
var flagMethod = &cli.StringFlag{
	Name:  "method",
	Value: "GET",
	Usage: "HTTP method to use",
}
var flagHeader = &cli.StringSliceFlag{
	Name:  "header",
	Usage: "committed request header, 'Name: value' or name=value. Repeatable",
}
var flagExcludedHeader = &cli.StringSliceFlag{
	Name:  "excluded-header",
	Usage: "request header sent but not committed to the signature. Repeatable",
}
var flagBody = &cli.StringFlag{
	Name:  "body",
	Usage: "committed request body",
}
var flagExcludedBody = &cli.StringFlag{
	Name:  "excluded-body",
	Usage: "request body suffix sent but not committed to the signature",
}
var flagResponseHeader = &cli.StringSliceFlag{
	Name:  "response-header",
	Usage: "response header to disclose and commit, case-sensitive canonical name. Repeatable",
}
var flagMeasurement = &cli.StringSliceFlag{
	Name:  "measurement",
	Usage: "expected measurement register, index=hex. Repeatable",
}
var flagMaxAttestationAge = &cli.DurationFlag{
	Name:  "max-attestation-age",
	Value: 0,
	Usage: "reject attestation documents older than this, 0 to disable",
}
var flagOut = &cli.StringFlag{
	Name:     "out",
	Required: true,
	Usage:    "file to write the new key material to",
}
var flagShares = &cli.IntFlag{
	Name:  "shares",
	Usage: "split the key into this many shares written to <out>.share-<n> instead of a single file",
}
var flagThreshold = &cli.IntFlag{
	Name:  "threshold",
	Value: 2,
	Usage: "number of shares needed to reconstruct the key, with --shares",
}
var flagTimeout = &cli.DurationFlag{
	Name:  "timeout",
	Value: 2 * time.Minute,
	Usage: "overall timeout of the fetch and verification",
}

// fetchOutput is printed by the fetch command.
type fetchOutput struct {
	Response  *interfaces.FetchResponse `json:"response"`
	Digest    string                    `json:"digest"`
	ABI       string                    `json:"abi"`
	Signature string                    `json:"signature"`
	Signer    string                    `json:"signer"`
}

func main() {
	app := &cli.App{
		Name:  "teefetch",
		Usage: "Request and verify attested fetches",
		Flags: []cli.Flag{
			flags.LogJsonFlag,
			flags.LogDebugFlag,
			flags.LogServiceFlagFn("teefetch"),
		},
		Commands: []*cli.Command{
			{
				Name:  "fetch",
				Usage: "Fetch a URL through a TEE instance and verify the signed response",
				Flags: []cli.Flag{
					flagIP,
					flagURL,
					flagMethod,
					flagHeader,
					flagExcludedHeader,
					flagBody,
					flagExcludedBody,
					flagResponseHeader,
					flagMeasurement,
					flags.AttestationTypeFlag,
					flagMaxAttestationAge,
					flagTimeout,
				},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					return runFetch(cCtx, logger, os.Stdout)
				},
			},
			{
				Name:  "keygen",
				Usage: "Generate new signing key material",
				Flags: []cli.Flag{flagOut, flagShares, flagThreshold},
				Action: func(cCtx *cli.Context) error {
					return runKeygen(cCtx.String(flagOut.Name), cCtx.Int(flagShares.Name), cCtx.Int(flagThreshold.Name), os.Stdout)
				},
			},
			{
				Name:  "pubkey",
				Usage: "Print the public key and address of signing key material",
				Flags: []cli.Flag{flags.SigningKeyFlag, flags.SigningKeyThresholdFlag},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)
					source, err := flags.KeySource(cCtx, logger)
					if err != nil {
						return err
					}
					return runPubkey(cCtx.Context, source, os.Stdout)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runFetch(cCtx *cli.Context, logger *slog.Logger, out io.Writer) error {
	attestationType, err := flags.AttestationType(cCtx)
	if err != nil {
		return err
	}

	headers, err := parseHeaders(cCtx.StringSlice(flagHeader.Name))
	if err != nil {
		return err
	}

	excludedHeaders, err := parseHeaders(cCtx.StringSlice(flagExcludedHeader.Name))
	if err != nil {
		return err
	}

	measurements, err := parseMeasurements(cCtx.StringSlice(flagMeasurement.Name))
	if err != nil {
		return err
	}
	if len(measurements) == 0 {
		logger.Warn("No expected measurements given, any image running the attested key is accepted")
	}

	ip := cCtx.String(flagIP.Name)
	gateway := &attestationhandler.Gateway{
		Endpoint:             instanceEndpoint(ip, api.DefaultAttestationPort),
		Type:                 attestationType,
		ExpectedMeasurements: measurements,
		MaxAge:               cCtx.Duration(flagMaxAttestationAge.Name),
	}
	client := fetchhandler.NewClient(instanceEndpoint(ip, api.DefaultFetchPort), gateway)

	req := &interfaces.FetchRequest{
		URL:             cCtx.String(flagURL.Name),
		Method:          cCtx.String(flagMethod.Name),
		Headers:         headers,
		ExcludedHeaders: excludedHeaders,
		Body:            cCtx.String(flagBody.Name),
		ExcludedBody:    cCtx.String(flagExcludedBody.Name),
		ResponseHeaders: cCtx.StringSlice(flagResponseHeader.Name),
	}

	ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
	defer cancel()

	resp, err := client.FetchAndVerify(ctx, req)
	if err != nil {
		logger.Error("Fetch failed verification", "err", err)
		return err
	}

	return printFetch(out, req, resp)
}

func printFetch(out io.Writer, req *interfaces.FetchRequest, resp *interfaces.FetchResponse) error {
	digest, err := cryptoutils.SigningDigest(req, resp)
	if err != nil {
		return err
	}

	encoded, err := cryptoutils.EncodeABI(req, resp)
	if err != nil {
		return err
	}

	sig, err := interfaces.NewSignatureFromHex(resp.Signature)
	if err != nil {
		return err
	}

	signer, err := cryptoutils.RecoverPublicKey(digest, sig)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(fetchOutput{
		Response:  resp,
		Digest:    digest.String(),
		ABI:       hexutil.Encode(encoded),
		Signature: "0x" + sig.String(),
		Signer:    signer.Address().Hex(),
	})
}

func runKeygen(path string, shares, threshold int, out io.Writer) error {
	material, err := kms.GenerateKeyMaterial(nil)
	if err != nil {
		return err
	}
	defer clear(material)

	key, err := kms.NewSigningKey(material)
	if err != nil {
		return err
	}

	if shares == 0 {
		if err := storage.WriteKeyFile(path, material); err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "Wrote key material to %s\npublic key: %s\naddress: %s\n", path, key.PublicKey().String(), key.Address().Hex())
		return err
	}

	parts, err := kms.SplitKeyMaterial(material, shares, threshold)
	if err != nil {
		return err
	}
	for i, share := range parts {
		sharePath := fmt.Sprintf("%s.share-%d", path, i+1)
		if err := storage.WriteKeyFile(sharePath, []byte(hex.EncodeToString(share))); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(out, "Wrote key share to %s\n", sharePath); err != nil {
			return err
		}
	}

	_, err = fmt.Fprintf(out, "threshold: %d of %d\npublic key: %s\naddress: %s\n", threshold, shares, key.PublicKey().String(), key.Address().Hex())
	return err
}

func runPubkey(ctx context.Context, source interfaces.KeySource, out io.Writer) error {
	material, err := source.Fetch(ctx)
	if err != nil {
		return err
	}

	key, err := kms.NewSigningKey(material)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(out, "public key: %s\naddress: %s\n", key.PublicKey().String(), key.Address().Hex())
	return err
}
