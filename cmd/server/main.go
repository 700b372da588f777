package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/partykit/rounds-backend/internal/config"
	"github.com/partykit/rounds-backend/internal/hub"
	"github.com/partykit/rounds-backend/internal/httpapi"
	"github.com/partykit/rounds-backend/internal/session"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	cfg.ApplyEnv()

	ctx := context.Background()
	h := hub.NewHub(ctx, log.Logger)

	newOpts := func(mode session.Mode) session.Options {
		return session.Options{
			Mode:      mode,
			Chairs:    cfg.Chairs.Rules(),
			DeathDate: cfg.DeathDate.Rules(),
			Poll:      cfg.Server.PollInterval(),
			Log:       log.Logger,
		}
	}

	handler := httpapi.SetupRoutes(h, newOpts, log.Logger)

	log.Info().Str("addr", cfg.Server.Addr).Msg("listening")
	if err := http.ListenAndServe(cfg.Server.Addr, handler); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}
