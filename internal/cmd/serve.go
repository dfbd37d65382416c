package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/josh20ny/np-analytics-app-sub000/internal/api"
	apicadence "github.com/josh20ny/np-analytics-app-sub000/internal/api/cadence"
	apireport "github.com/josh20ny/np-analytics-app-sub000/internal/api/report"
	"github.com/josh20ny/np-analytics-app-sub000/internal/seed"
	"github.com/josh20ny/np-analytics-app-sub000/internal/store"
)

var serveSeedDemo bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the analytics HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveSeedDemo, "seed-demo", false, "insert demo data into an empty database")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDB(cmd, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if serveSeedDemo {
		if err := seed.Seed(cmd.Context(), db); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	s := store.New(db)
	logger := slog.Default()

	mux := http.NewServeMux()
	apicadence.RegisterRoutes(mux, s, cfg.Cadence, logger)
	apireport.RegisterRoutes(mux, s, cfg.Cadence, logger)

	// Catch-all: unknown routes get the JSON error envelope.
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		corrID := api.CorrelationID(r.Context())
		api.WriteError(w, http.StatusNotFound, api.NewNotFoundError(
			fmt.Sprintf("No route found for %s %s", r.Method, r.URL.Path),
			corrID,
		))
	})

	handler := api.Chain(mux,
		api.Recovery(),
		api.RequestID(),
		api.Auth(cfg.AuthToken),
		api.Logging(),
	)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: handler,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		logger.Info("shutting down server")
		if err := srv.Shutdown(context.Background()); err != nil {
			logger.Error("server shutdown error", "error", err)
		}
	}()

	logger.Info("starting npanalytics server", "addr", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen: %w", err)
	}

	return nil
}
