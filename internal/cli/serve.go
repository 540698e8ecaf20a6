package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"arborescence/internal/api"
	"arborescence/internal/cache"
	"arborescence/internal/config"
	"arborescence/internal/store"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newServeCmd(app *App) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP persistence service over --db",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			lvl, _ := config.ParseLogLevel(app.LogLevel)
			log := slog.New(slog.NewJSONHandler(cmd.OutOrStdout(), &slog.HandlerOptions{Level: lvl}))

			ctx, stop := signal.NotifyContext(cmdContext(cmd), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := store.Open(ctx, app.DB, log)
			if err != nil {
				log.Error("open store", "error", err)
				return err
			}
			defer st.Close()

			opts := []api.Option{api.WithAPIKey(app.APIKey)}
			if app.cfg.RedisURL != "" {
				c, err := cache.New(app.cfg.RedisURL)
				if err != nil {
					log.Error("connect redis", "error", err)
					return err
				}
				defer c.Close()
				opts = append(opts, api.WithCache(c.WithTTL(app.cfg.CacheTTL)))
				log.Info("tree cache enabled", "ttl", app.cfg.CacheTTL.String())
			}
			srv := api.NewServer(st, log, opts...)

			httpServer := &http.Server{
				Addr:         ":" + port,
				Handler:      srv,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				log.Info("starting arbo", "port", port, "backend", st.Backend(), "auth", app.APIKey != "")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				log.Info("shutting down...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownTimeout)
				defer cancel()
				return httpServer.Shutdown(shutdownCtx)
			})
			if err := g.Wait(); err != nil {
				log.Error("server error", "error", err)
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", app.cfg.Port, "Listen port")
	return cmd
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
