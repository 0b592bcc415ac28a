// Command authorize runs the one-time Business Profile consent flow and
// stores the resulting refresh token for the ingestor.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"marketing_sync/internal/adapters/gauth"
	"marketing_sync/internal/adapters/observability"
	"marketing_sync/internal/shared"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg(".env not loaded")
	}
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)

	oc, err := gauth.ConfigFromFile(cfg.Profiles.ClientSecretFile, gauth.BusinessManageScope)
	if err != nil {
		log.Fatal().Err(err).Msg("client secret not usable")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	tok, err := gauth.Authorize(ctx, oc, func(u string) {
		fmt.Fprintf(os.Stderr, "Open this URL in a browser to grant access:\n\n  %s\n\n", u)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("authorization failed")
	}

	store := gauth.TokenStore{Path: cfg.Profiles.TokenFile}
	if err := store.Save(tok); err != nil {
		log.Fatal().Err(err).Msg("token not saved")
	}
	log.Info().Str("path", store.Path).Msg("token saved")
}
