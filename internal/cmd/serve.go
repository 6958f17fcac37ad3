package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/clinicalintel/intake/internal/doctor"
	"github.com/clinicalintel/intake/internal/ingest"
	"github.com/clinicalintel/intake/internal/patient"
	"github.com/clinicalintel/intake/internal/retention"
	"github.com/clinicalintel/intake/internal/server"
)

var (
	servePort int
	serveGate string
	serveSeed bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the intake HTTP API with scheduled retention",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "HTTP server port")
	serveCmd.Flags().StringVar(&serveGate, "gate", gateSemantic, "NAME gate (keyword, semantic)")
	serveCmd.Flags().BoolVar(&serveSeed, "seed", false, "load sample patients before serving")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if serveSeed {
		ids, err := patient.Seed(ctx, store)
		if err != nil {
			return fmt.Errorf("seeding patients: %w", err)
		}
		log.Info().Int("patients", len(ids)).Msg("sample_patients_loaded")
	}

	engine, err := buildEngine(cfg, serveGate)
	if err != nil {
		return err
	}
	svc := ingest.NewService(engine, store, patient.NewExtractor(engine.Redactor().Library()))

	scheduler := retention.NewScheduler(store, cfg.RetentionDays)
	if cfg.RetentionDays > 0 {
		if err := scheduler.Register(cfg.RetentionSchedule); err != nil {
			return err
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	for _, c := range doctor.Run(ctx, doctor.Options{SkipUpstream: true}).Checks {
		if c.Status != doctor.StatusPass {
			log.Warn().Str("check", c.Name).Str("status", c.Status).Str("fix", c.Fix).Msg(c.Message)
		}
	}

	opts := []server.Option{
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithAPIKeys(cfg.APIKeys),
		server.WithRateLimiter(server.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitRPM)),
	}
	if telemetry != nil && telemetry.MetricsHandler != nil {
		opts = append(opts, server.WithMetricsHandler(telemetry.MetricsHandler))
	}
	srv := server.NewServer(svc, store, opts...)

	addr := fmt.Sprintf(":%d", servePort)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Routes(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().
		Str("addr", addr).
		Str("gate", serveGate).
		Str("ner_provider", cfg.NERProvider).
		Int("cron_entries", scheduler.Entries()).
		Int("retention_days", cfg.RetentionDays).
		Bool("auth", len(cfg.APIKeys) > 0).
		Msg("intake_serve_started")

	errCh := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown_signal_received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	log.Info().Msg("server_stopped")
	return nil
}
