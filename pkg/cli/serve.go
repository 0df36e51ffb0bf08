package cli

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/reposync/pkg/cli/config"
	controller "github.com/m-mizutani/reposync/pkg/controller/http"
	"github.com/m-mizutani/reposync/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		serverCfg config.Server
		syncCfg   = newSyncConfig()
		initial   bool
	)

	flags := append(serverCfg.Flags(), syncCfg.Flags(false)...)
	flags = append(flags, &cli.BoolFlag{
		Name:        "initial-sync",
		Usage:       "Run a sync pass at startup",
		Destination: &initial,
		Sources:     cli.EnvVars("REPOSYNC_INITIAL_SYNC"),
	})

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start HTTP server that syncs on source repository webhooks",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := ctxlog.From(ctx)

			logger.Info("Starting reposync server",
				slog.String("addr", serverCfg.Addr),
			)

			deps, err := syncCfg.build(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := deps.ledger.Close(); err != nil {
					logger.Warn("Failed to close ledger", "error", err)
				}
			}()

			runner := usecase.NewSyncRunner(deps.newUseCase)
			webhookUC := usecase.NewWebhook(syncCfg.source.Repo, runner)

			// Create HTTP server with options
			server, err := controller.NewServer(
				ctx,
				webhookUC,
				controller.WithAddr(serverCfg.Addr),
				controller.WithWebhookSecret(serverCfg.WebhookSecret),
				controller.WithLedger(deps.ledger),
				controller.WithStatus(runner),
			)
			if err != nil {
				return goerr.Wrap(err, "failed to create HTTP server")
			}

			if initial {
				runner.Trigger(ctx)
			}

			// Start server in goroutine
			go func() {
				logger.Info("HTTP server starting", slog.String("addr", serverCfg.Addr))
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("HTTP server error", slog.Any("error", err))
				}
			}()

			// main cancels ctx on SIGINT and SIGTERM
			<-ctx.Done()
			logger.Info("Shutting down...", slog.Any("cause", context.Cause(ctx)))

			// Graceful shutdown
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shutdown server gracefully")
			}

			runner.Stop()
			waitCtx, cancelWait := context.WithTimeout(context.Background(), time.Minute)
			defer cancelWait()
			if err := runner.Wait(waitCtx); err != nil {
				logger.Warn("Sync pass still running at shutdown", "error", err)
			}

			logger.Info("Server shutdown complete")
			return nil
		},
	}
}
