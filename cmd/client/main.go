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

	router "github.com/dkeye/Duet/internal/adapters/http"
	"github.com/dkeye/Duet/internal/adapters/rtc"
	sig "github.com/dkeye/Duet/internal/adapters/signal"
	"github.com/dkeye/Duet/internal/app"
	"github.com/dkeye/Duet/internal/app/orch"
	"github.com/dkeye/Duet/internal/config"
	"github.com/dkeye/Duet/internal/domain"
	"github.com/dkeye/Duet/internal/session"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	transport, err := sig.NewClient(sig.Options{
		URL:            cfg.SignalingURL,
		ClientID:       cfg.ClientID,
		UserID:         cfg.UserID,
		Nick:           cfg.Nick,
		ReadLimit:      cfg.ReadLimit,
		PingPeriod:     cfg.PingPeriod,
		InviteLimit:    cfg.InviteRateLimit,
		InviteInterval: cfg.InviteRateInterval,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("signaling client")
	}
	go func() {
		if err := transport.Run(ctx); err != nil {
			log.Error().Err(err).Msg("signaling stopped")
		}
	}()

	media, err := rtc.NewEngine(rtc.Config{
		ICEServers:             cfg.ICEServers,
		ICEDisconnectedTimeout: cfg.ICEDisconnectedTimeout,
		ICEFailedTimeout:       cfg.ICEFailedTimeout,
		ICEKeepalive:           cfg.ICEKeepalive,
		RecordDir:              cfg.RecordDir,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("media engine")
	}

	// The session outlives ctx so Close can release media before exit.
	sess, err := session.New(context.Background(), session.Options{
		Transport:          transport,
		Media:              media,
		LocalUserID:        domain.UserID(cfg.UserID),
		NextDebounce:       cfg.NextDebounce,
		ToggleDebounce:     cfg.ToggleDebounce,
		DeclineSuppression: cfg.DeclineSuppression,
		RestartCooldown:    cfg.RestartCooldown,
		RestartBudget:      cfg.RestartBudget,
		InviteTimeout:      cfg.InviteTimeout,
		DedupeTTL:          cfg.DedupeTTL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("session")
	}

	o := orch.New(sess, app.NewRegistry(), app.LenientPolicy{})
	go o.Run(ctx)

	r := router.SetupRouter(ctx, cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("id", cfg.ClientID).Msg("Duet client started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	sess.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}
