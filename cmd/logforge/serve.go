package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"logforge/internal/app"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the metric query API and the run trigger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := bootstrap(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer rt.Close(context.Background())

			server := app.NewHTTPServer(rt.app)

			// Graceful shutdown
			go func() {
				if err := server.Listen(rt.cfg.HTTP.Addr); err != nil {
					rt.logger.Error("fiber stopped", "error", err)
				}
			}()

			rt.logger.Info("server started", "addr", rt.cfg.HTTP.Addr)

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

			<-quit

			rt.logger.Info("shutting down...")

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := server.ShutdownWithContext(ctx); err != nil {
				rt.logger.Error("fiber shutdown error", "error", err)
			}

			rt.logger.Info("server exiting")
			return nil
		},
	}
}
