package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ruteri/pod-mint-service/cmd/flags"
	"github.com/ruteri/pod-mint-service/events"
	"github.com/ruteri/pod-mint-service/httpserver"
	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/ruteri/pod-mint-service/kms"
	"github.com/ruteri/pod-mint-service/links"
	"github.com/ruteri/pod-mint-service/minter"
	"github.com/ruteri/pod-mint-service/registry"
	"github.com/ruteri/pod-mint-service/storage"
	"github.com/ruteri/pod-mint-service/verifier"
	"github.com/urfave/cli/v2"
)

var serviceFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Usage: "optional JSON server config file (hostname, port, mintUrl, zupassUrl, defaultPrivateKey)",
	},
	&cli.StringFlag{
		Name:    "listen-addr",
		Value:   "127.0.0.1:8080",
		EnvVars: []string{"POD_MINT_LISTEN_ADDR"},
		Usage:   "address to listen on for API",
	},
	&cli.StringFlag{
		Name:    "mint-url",
		Value:   "http://127.0.0.1:8080/api/mintPOD",
		EnvVars: []string{"POD_MINT_URL"},
		Usage:   "public URL of the mint endpoint, embedded in mint links",
	},
	&cli.StringFlag{
		Name:    "zupass-url",
		Value:   "https://zupass.org",
		EnvVars: []string{"POD_MINT_ZUPASS_URL"},
		Usage:   "wallet base URL mint links point to",
	},
	&cli.StringFlag{
		Name:    "signer-key",
		EnvVars: []string{"POD_MINT_SIGNER_KEY"},
		Usage:   "hex or base64 encoded default signer key seed",
	},
	&cli.StringSliceFlag{
		Name:    "signer-key-share",
		EnvVars: []string{"POD_MINT_SIGNER_KEY_SHARES"},
		Usage:   "hex encoded Shamir share of the default signer key seed (repeat for each share)",
	},
	&cli.StringFlag{
		Name:    "credentials-file",
		Value:   "credentials.json",
		EnvVars: []string{"POD_MINT_CREDENTIALS_FILE"},
		Usage:   "JSON file mapping admin users to passwords or bcrypt hashes",
	},
	&cli.StringFlag{
		Name:    "data-dir",
		Value:   ".",
		EnvVars: []string{"POD_MINT_DATA_DIR"},
		Usage:   "directory holding the template store document",
	},
	&cli.StringFlag{
		Name:    "store-uri",
		EnvVars: []string{"POD_MINT_STORE_URI"},
		Usage:   "primary storage backend URI, overrides --data-dir (file://, s3://, ipfs://, vault://)",
	},
	&cli.StringSliceFlag{
		Name:    "store-mirror",
		EnvVars: []string{"POD_MINT_STORE_MIRRORS"},
		Usage:   "storage backend URI receiving a copy of the store document (repeatable)",
	},
	&cli.StringFlag{
		Name:    "circuit-vk",
		EnvVars: []string{"POD_MINT_CIRCUIT_VK"},
		Usage:   "ownership circuit verifying key file; circuit proofs are rejected when unset",
	},
	&cli.StringFlag{
		Name:    "credential-issuer-key",
		EnvVars: []string{"POD_MINT_CREDENTIAL_ISSUER_KEY"},
		Usage:   "hex or base64 Ed25519 public key of the email credential issuer; credential proofs are rejected when unset",
	},
	&cli.StringFlag{
		Name:    "credential-issuer",
		EnvVars: []string{"POD_MINT_CREDENTIAL_ISSUER"},
		Usage:   "expected issuer claim of email credentials",
	},
	&cli.DurationFlag{
		Name:  "verifier-timeout",
		Value: verifier.DefaultTimeout,
		Usage: "upper bound on a single proof verification",
	},
	&cli.StringFlag{
		Name:    "rabbitmq-url",
		EnvVars: []string{"POD_MINT_RABBITMQ_URL"},
		Usage:   "AMQP URL for lifecycle events; events are dropped when unset",
	},
	&cli.StringFlag{
		Name:  "rabbitmq-exchange",
		Value: "pod-mint",
		Usage: "topic exchange lifecycle events are published to",
	},
	flags.LogServiceFlagFn("pod-mint"),
}

func main() {
	app := &cli.App{
		Name:   "pod-mint-server",
		Usage:  "Serve the POD mint API and template admin page",
		Flags:  append(serviceFlags, flags.CommonFlags...),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)
	ctx := cCtx.Context

	var file *serverConfig
	if path := cCtx.String("config"); path != "" {
		var err error
		if file, err = loadServerConfig(path); err != nil {
			logger.Error("Failed to load server config", "err", err)
			return err
		}
	}

	cfg, err := resolveSettings(settings{
		ListenAddr: cCtx.String("listen-addr"),
		MintURL:    cCtx.String("mint-url"),
		ZupassURL:  cCtx.String("zupass-url"),
		SignerKey:  cCtx.String("signer-key"),
	}, cCtx.IsSet, file)
	if err != nil {
		return err
	}

	keyring, err := setupKeyring(cfg.SignerKey, cCtx.StringSlice("signer-key-share"))
	if err != nil {
		logger.Error("Failed to set up signer keys", "err", err)
		return err
	}
	logger.Info("Signer keys loaded", "defaultPublicKey", keyring.Default().PublicKey())

	creds, err := loadCredentials(cCtx.String("credentials-file"))
	if err != nil {
		logger.Error("Failed to load admin credentials", "err", err)
		return err
	}

	backend, err := setupStorage(cCtx, logger)
	if err != nil {
		logger.Error("Failed to set up storage", "err", err)
		return err
	}

	linkGen, err := links.NewGenerator(cfg.MintURL, cfg.ZupassURL)
	if err != nil {
		return err
	}

	store, err := registry.Open(ctx, backend, keyring, linkGen, logger)
	if err != nil {
		logger.Error("Failed to open template store", "err", err)
		return err
	}

	dispatcher, err := setupVerifier(cCtx, logger)
	if err != nil {
		logger.Error("Failed to set up proof verification", "err", err)
		return err
	}

	publisher, err := setupEvents(cCtx, logger)
	if err != nil {
		logger.Error("Failed to set up event publishing", "err", err)
		return err
	}
	defer publisher.Close()

	m := minter.New(minter.Config{
		Store:    store,
		Verifier: dispatcher,
		Signers:  keyring,
		Events:   publisher,
		Log:      logger,
	})

	handler := httpserver.NewHandler(store, m, linkGen, publisher, logger)
	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, cfg.ListenAddr, creds), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server",
		"listenAddr", cfg.ListenAddr,
		"mintUrl", cfg.MintURL,
		"templates", store.Len())
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Close(closeCtx); err != nil {
		logger.Error("Failed to flush template store", "err", err)
		return err
	}

	logger.Info("Server shutdown complete")
	return nil
}

func setupKeyring(signerKey string, shares []string) (*kms.Keyring, error) {
	switch {
	case signerKey != "" && len(shares) > 0:
		return nil, errors.New("use either a signer key or signer key shares, not both")
	case signerKey != "":
		return kms.NewKeyringFromEncoded(signerKey)
	case len(shares) > 0:
		return kms.NewKeyringFromShares(shares)
	default:
		return nil, errors.New("a default signer key is required (--signer-key, --signer-key-share or defaultPrivateKey in the config file)")
	}
}

func loadCredentials(path string) (httpserver.Credentials, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return httpserver.LoadCredentials(f)
}

func setupStorage(cCtx *cli.Context, logger *slog.Logger) (interfaces.StorageBackend, error) {
	primary := interfaces.StorageBackendLocation(cCtx.String("store-uri"))
	if primary == "" {
		dir, err := filepath.Abs(cCtx.String("data-dir"))
		if err != nil {
			return nil, err
		}
		primary = interfaces.StorageBackendLocation("file://" + dir)
	}

	var mirrors []interfaces.StorageBackendLocation
	for _, uri := range cCtx.StringSlice("store-mirror") {
		mirrors = append(mirrors, interfaces.StorageBackendLocation(uri))
	}

	factory := storage.NewStorageBackendFactory(logger)
	if len(mirrors) == 0 {
		return factory.StorageBackendFor(primary)
	}
	return factory.CreateMultiBackend(primary, mirrors)
}

func setupVerifier(cCtx *cli.Context, logger *slog.Logger) (*verifier.Dispatcher, error) {
	cfg := verifier.Config{
		Signature: verifier.EdDSAVerifier{},
		Timeout:   cCtx.Duration("verifier-timeout"),
		Log:       logger,
	}

	if encoded := cCtx.String("credential-issuer-key"); encoded != "" {
		key, err := verifier.ParseIssuerKey(encoded)
		if err != nil {
			return nil, err
		}
		cfg.Credential = verifier.NewJWTCredentialVerifier(key, cCtx.String("credential-issuer"))
		logger.Info("Email credential proofs enabled", "issuer", cCtx.String("credential-issuer"))
	}

	if path := cCtx.String("circuit-vk"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()

		vk, err := verifier.ReadVerifyingKey(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read circuit verifying key: %w", err)
		}
		cfg.Circuit = verifier.NewGroth16Verifier(vk)
		logger.Info("Circuit proofs enabled", "verifyingKey", path)
	}

	return verifier.NewDispatcher(cfg), nil
}

func setupEvents(cCtx *cli.Context, logger *slog.Logger) (events.Publisher, error) {
	url := cCtx.String("rabbitmq-url")
	if url == "" {
		return events.Noop{}, nil
	}
	return events.NewRabbitMQPublisher(url, cCtx.String("rabbitmq-exchange"), logger)
}
