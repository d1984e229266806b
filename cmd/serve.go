package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/tailorreach/internal/api"
	"github.com/sells-group/tailorreach/internal/auth"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		verifier, err := auth.FromConfig(cfg.Auth)
		if err != nil {
			return err
		}

		e, err := initEnv(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.Store.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate")
		}

		handler := api.New(api.Deps{
			Store:       e.Store,
			Scoring:     e.Scoring,
			Drafter:     e.Drafter,
			Onboarding:  e.Onboarding,
			Verifier:    verifier,
			Breakers:    e.Gateway.Breakers,
			CORSOrigins: cfg.Server.CORSOrigins,
		}).Routes()

		return startServer(ctx, handler, resolvePort(servePort, cfg.Server.Port), serverTimeouts{
			read:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
			write: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		})
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// resolvePort prefers the flag value over the configured port.
func resolvePort(flag, configured int) int {
	if flag != 0 {
		return flag
	}
	return configured
}

type serverTimeouts struct {
	read  time.Duration
	write time.Duration
}

// startServer serves h until ctx is cancelled, then drains in-flight
// requests for up to 30 seconds.
func startServer(ctx context.Context, h http.Handler, port int, t serverTimeouts) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       t.read,
		WriteTimeout:      t.write,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- eris.Wrap(err, "server listen")
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	zap.L().Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return eris.Wrap(err, "server shutdown")
	}
	return <-errCh
}
