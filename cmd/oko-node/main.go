package main

import (
	"flag"
	"fmt"
	"time"

	"oko-node/api"
	"oko-node/api/handlers"
	"oko-node/internal/commitreveal"
	"oko-node/internal/config"
	"oko-node/internal/kernel/devkernel"
	"oko-node/internal/logger"
	"oko-node/internal/oauth"
	"oko-node/internal/sharecrypt"
	"oko-node/internal/storage"
	"oko-node/internal/token"
	"oko-node/internal/tss"

	"github.com/sirupsen/logrus"
)

// newVerifier selects the identity-token verifier for the configured
// OAuth mode.
func newVerifier(mode string) (oauth.Verifier, error) {
	switch mode {
	case "claims":
		logger.Log.Warn("OAuth mode 'claims': identity token signatures are NOT checked; only run behind a gateway that verifies them")
		return oauth.ClaimsVerifier{}, nil
	default:
		return nil, fmt.Errorf("unknown oauth_mode %q", mode)
	}
}

func main() {
	configPath := flag.String("config", "config.json", "path to the configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}
	if err := logger.InitLogger(cfg.Logger); err != nil {
		logrus.Fatalf("Failed to initialize logger: %v", err)
	}

	// Open migrates the schema itself.
	db, err := storage.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}

	cipher, err := sharecrypt.NewCipher(cfg.Share.EncryptionKey)
	if err != nil {
		logger.Log.Fatalf("Failed to initialize share cipher: %v", err)
	}
	nodeKey, err := commitreveal.LoadOrCreateNodeKey(cfg.CommitReveal.NodeKeyFile)
	if err != nil {
		logger.Log.Fatalf("Failed to load node identity key: %v", err)
	}

	wallets := storage.NewWalletStore(db)
	sessions := storage.NewSessionStore(db, time.Duration(cfg.Session.TTLSeconds)*time.Second)
	crStore := storage.NewCommitRevealStore(db)

	tokens := token.NewService(cfg.Auth.JWTSecret, time.Duration(cfg.Auth.TokenTTLSeconds)*time.Second)
	verifier, err := newVerifier(cfg.Auth.OAuthMode)
	if err != nil {
		logger.Log.Fatalf("Failed to configure OAuth verification: %v", err)
	}

	tssSvc := tss.NewService(wallets, sessions, cipher, devkernel.NewEcdsa(), devkernel.NewEddsa())
	crSvc := commitreveal.NewService(crStore, wallets, cipher, verifier, tokens, nodeKey,
		time.Duration(cfg.CommitReveal.SessionTTLSeconds)*time.Second)

	router := api.SetupRouter(
		handlers.NewTssHandler(tssSvc, tokens, verifier),
		handlers.NewCommitRevealHandler(crSvc),
		tokens,
		cfg.Auth.APIKeys,
	)

	logger.Log.Infof("Listening on %s", cfg.ServerPort)
	if err := router.Run(cfg.ServerPort); err != nil {
		logger.Log.Fatalf("Server exited: %v", err)
	}
}
