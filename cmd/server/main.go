package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/meetcall/meetcall/internal/adapters/http"
	"github.com/meetcall/meetcall/internal/app"
	"github.com/meetcall/meetcall/internal/config"
	"github.com/meetcall/meetcall/internal/core"
	"github.com/meetcall/meetcall/internal/store/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	gw, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open store")
	}
	defer func() {
		if err := gw.Close(); err != nil {
			log.Error().Err(err).Msg("store close")
		}
	}()

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Queue:    core.NewMatchQueue(),
		Calls:    core.NewCallTable(),
		Presence: core.NewPresenceRegistry(),
		Store:    gw,
	}

	r := router.SetupRouter(ctx, cfg, orch, gw)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("MeetCall server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// Shutdown does not touch hijacked connections; drop the WebSockets too.
	orch.Registry.CloseAll()
	log.Info().Msg("Server exited gracefully")
}
