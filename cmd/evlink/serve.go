package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/evlink-labs/evlink/internal/cliconfig"
	"github.com/evlink-labs/evlink/internal/ports"
	"github.com/evlink-labs/evlink/internal/server"
)

func newServeCmd() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the evlink daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := changedFlags(cmd)
			cfgFile, err := applyConfig(&cfg, cfgPath, changed)
			if err != nil {
				return err
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			logger.Info("configuration", ports.Any("config", cfg))

			srv, err := server.New(server.Config{
				ListenAddr:   cfg.ListenAddr,
				Path:         cfg.Path,
				Policy:       cfg.Policy(),
				WriteTimeout: cfg.WriteTimeout,
			}, server.WithLogger(logger))
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(ctx)
			})

			// Reload the policy for new sessions when the config file
			// changes. Established sessions are not renegotiated.
			if cfgFile != "" {
				watcher := cliconfig.NewWatcher(cfgFile, logger, func(next cliconfig.Config) {
					if err := srv.SetPolicy(next.Policy()); err != nil {
						logger.Warn("policy update rejected", ports.Err(err))
					}
				})
				g.Go(func() error {
					return watcher.Run(ctx)
				})
			}

			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.evlink/config.toml)")
	cmd.Flags().StringVar(&cfg.ListenAddr, "listen", cfg.ListenAddr, "TCP address to listen on")
	cmd.Flags().StringVar(&cfg.Path, "path", cfg.Path, "URL path connections are upgraded on")
	cmd.Flags().DurationVar(&cfg.AckTimeout, "ack-timeout", cfg.AckTimeout, "time a peer has to acknowledge an event")
	cmd.Flags().DurationVar(&cfg.HeartbeatInterval, "heartbeat", cfg.HeartbeatInterval, "ping interval on idle connections (0 disables)")
	cmd.Flags().Int64Var(&cfg.MaxMessageSize, "max-message-size", cfg.MaxMessageSize, "maximum inbound message size in bytes (0 disables)")
	cmd.Flags().IntVar(&cfg.RateLimit, "rate-limit", cfg.RateLimit, "maximum inbound messages per rate interval (0 disables)")
	cmd.Flags().DurationVar(&cfg.RateInterval, "rate-interval", cfg.RateInterval, "window for the inbound message rate limit")
	cmd.Flags().DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "per-write deadline on connections")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")

	return cmd
}
