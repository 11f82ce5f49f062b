package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"agent-workspace/logging"
)

const VERSION = "0.1.0"

func main() {
	envErr := godotenv.Load()

	cfg := ServerConfigFromEnv()
	logging.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if envErr != nil {
		log.Info().Msg(".env file not found, using environment variables")
	}

	log.Info().Str("version", VERSION).Msg("starting agent workspace server")

	ctx := context.Background()
	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize")
	}
	defer a.Close()

	srv := &http.Server{
		Handler:     a.routes(),
		Addr:        "0.0.0.0:" + cfg.Port,
		ReadTimeout: 30 * time.Second,
		// streaming routes and plan execution hold the response open
		WriteTimeout: 0,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}
