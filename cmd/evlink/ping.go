package main

import (
	"context"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/evlink-labs/evlink/internal/adapters/ws"
	"github.com/evlink-labs/evlink/internal/cliconfig"
	"github.com/evlink-labs/evlink/internal/domain"
	"github.com/evlink-labs/evlink/internal/session"
)

func newPingCmd() *cobra.Command {
	cfg := cliconfig.DefaultConfig()
	var (
		cfgPath  string
		count    int
		interval time.Duration
		wait     bool
	)

	cmd := &cobra.Command{
		Use:   "ping",
		Short: "Probe a daemon and report ack round-trip times",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed := changedFlags(cmd)
			if _, err := applyConfig(&cfg, cfgPath, changed); err != nil {
				return err
			}
			if count < 1 {
				return fmt.Errorf("count must be at least 1, got %d", count)
			}

			logger, err := newLogger(cfg.LogLevel)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			opts := ws.Options{WriteTimeout: cfg.WriteTimeout}

			var conn *ws.Conn
			if wait {
				conn, err = dialWithRetry(ctx, cfg.URL, opts, logger)
			} else {
				conn, err = ws.Dial(ctx, cfg.URL, opts)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			reporter := &pingReporter{out: out, acked: make(chan time.Duration, count)}

			sess, err := session.Open(ctx, session.RoleClient, conn,
				session.Config{},
				session.WithLogger(logger),
				session.WithMonitor(reporter),
			)
			if err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
			defer func() { _ = sess.Close() }()

			// Echo replies must be acknowledged or the server's ack
			// deadline would fault the link mid-probe.
			go func() {
				for ev := range sess.Inbound() {
					_ = sess.SendAck(ctx, ev.ID)
				}
			}()

			for i := 0; i < count; i++ {
				if i > 0 {
					select {
					case <-time.After(interval):
					case <-ctx.Done():
						return ctx.Err()
					case <-sess.Done():
						return sessionEndError(sess)
					}
				}
				ev := &domain.Event{Payload: map[string]interface{}{"op": "echo", "seq": i}}
				if err := sess.SendEvent(ctx, ev); err != nil {
					return fmt.Errorf("send event: %w", err)
				}
			}

			deadline := time.After(sess.Policy().AckTimeout + time.Second)
			rtts := make([]time.Duration, 0, count)
			for len(rtts) < count {
				select {
				case d := <-reporter.acked:
					rtts = append(rtts, d)
				case <-ctx.Done():
					return ctx.Err()
				case <-sess.Done():
					return sessionEndError(sess)
				case <-deadline:
					return fmt.Errorf("timed out with %d of %d events acked", len(rtts), count)
				}
			}

			minRTT, maxRTT, sum := rtts[0], rtts[0], time.Duration(0)
			for _, d := range rtts {
				if d < minRTT {
					minRTT = d
				}
				if d > maxRTT {
					maxRTT = d
				}
				sum += d
			}
			fmt.Fprintf(out, "%d events acked: min=%v avg=%v max=%v\n",
				len(rtts), minRTT, sum/time.Duration(len(rtts)), maxRTT)
			return nil
		},
	}

	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.evlink/config.toml)")
	cmd.Flags().StringVar(&cfg.URL, "url", cfg.URL, "websocket URL of the daemon")
	cmd.Flags().IntVarP(&count, "count", "c", 5, "number of probe events to send")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "delay between probe events")
	cmd.Flags().BoolVar(&wait, "wait", false, "retry the dial with backoff until the daemon is reachable")
	cmd.Flags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")

	return cmd
}

// pingReporter prints each ack as it arrives and feeds latencies back
// to the probe loop.
type pingReporter struct {
	out   io.Writer
	acked chan time.Duration
}

func (r *pingReporter) OnPhaseChange(previous, current session.Phase, reason string) {}
func (r *pingReporter) OnFault(fault *domain.Fault)                                 {}

func (r *pingReporter) OnEventAcked(id string, latency time.Duration) {
	fmt.Fprintf(r.out, "acked %s rtt=%v\n", id, latency)
	select {
	case r.acked <- latency:
	default:
	}
}

func sessionEndError(sess *session.Session) error {
	if f := sess.Fault(); f != nil {
		return f
	}
	if err := sess.Err(); err != nil {
		return err
	}
	return domain.ErrClosed
}
