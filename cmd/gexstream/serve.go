package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/scmhub/calendar"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dgnsrekt/gexstream/internal/auth"
	"github.com/dgnsrekt/gexstream/internal/config"
	"github.com/dgnsrekt/gexstream/internal/fetch"
	"github.com/dgnsrekt/gexstream/internal/gex"
	"github.com/dgnsrekt/gexstream/internal/notify"
	"github.com/dgnsrekt/gexstream/internal/poll"
	"github.com/dgnsrekt/gexstream/internal/publish"
	"github.com/dgnsrekt/gexstream/internal/server"
	"github.com/dgnsrekt/gexstream/internal/store"
)

// marketClock answers whether a poll cycle should run right now.
type marketClock struct {
	location *time.Location
	nyse     *calendar.Calendar
	enabled  bool
}

func newMarketClock(timezone string, enabled bool) *marketClock {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		loc = time.UTC
	}
	return &marketClock{
		location: loc,
		nyse:     calendar.XNYS(),
		enabled:  enabled,
	}
}

func (m *marketClock) shouldPoll() bool {
	if !m.enabled {
		return true
	}
	return m.nyse.IsBusinessDay(time.Now().In(m.location))
}

// todayExpiration returns today's date as a YYMMDD expiration in the
// configured timezone, the zero-DTE default.
func (m *marketClock) todayExpiration() string {
	return time.Now().In(m.location).Format("060102")
}

func serveCmd() *cobra.Command {
	var expiration string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Poll gamma exposure on a schedule and serve it over HTTP",
		Long: `Run the poll loop: fetch every configured underlying at a fixed
interval, keep the latest snapshot in memory, append history, and serve
both over HTTP with a live SSE stream.

The expiration defaults to today's date (zero DTE) and rolls forward
each day; pass --expiration to pin one.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			tokens, err := auth.NewManager(cfg.Auth, logger)
			if err != nil {
				return err
			}
			fetcher := fetch.New(tokens, cfg.Feed, logger)

			if err := config.ValidateUnderlyings(cfg.Serve.Underlyings); err != nil {
				return err
			}

			latest := store.NewLatest()
			broadcaster := server.NewBroadcaster(latest, logger)

			sinks := []poll.Sink{
				poll.SinkFunc(func(_ context.Context, snap *gex.Snapshot) error {
					latest.Put(snap)
					return nil
				}),
				broadcaster,
			}

			// The history endpoint serves whatever is on disk even when
			// appending is disabled.
			history := store.NewHistory(cfg.History.Directory, logger)
			if cfg.History.Enabled {
				sinks = append(sinks, poll.SinkFunc(func(_ context.Context, snap *gex.Snapshot) error {
					return history.Append(snap)
				}))
			}

			if cfg.Publish.Enabled {
				publisher, err := publish.Connect(cfg.Publish, logger)
				if err != nil {
					return err
				}
				defer publisher.Close()
				sinks = append(sinks, publisher)
			}

			notifyCfg := notify.LoadConfig()
			if err := notifyCfg.Validate(); err != nil {
				return err
			}
			notifier := notify.New(notifyCfg, logger)

			manager := poll.NewManager(fetcher, sinks, cfg.Serve.Workers, logger)
			clock := newMarketClock(cfg.Serve.Timezone, cfg.Serve.MarketDaysOnly)

			srv := server.NewServer(latest, history, broadcaster, logger)
			httpSrv := &http.Server{
				Addr:              cfg.Serve.Listen,
				Handler:           server.NewRouter(srv, logger),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("http server listening", zap.String("addr", cfg.Serve.Listen))
				if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			runCycle := func() {
				if !clock.shouldPoll() {
					logger.Debug("market closed, skipping cycle")
					return
				}

				exp := expiration
				if exp == "" {
					exp = clock.todayExpiration()
				}

				tasks := make([]poll.Task, 0, len(cfg.Serve.Underlyings))
				for _, u := range cfg.Serve.Underlyings {
					tasks = append(tasks, poll.Task{Underlying: u, Expiration: exp})
				}

				start := time.Now()
				result, err := manager.Execute(ctx, tasks)
				duration := time.Since(start)
				if err != nil {
					logger.Error("poll cycle failed", zap.Error(err))
					if nerr := notifier.SendFailure(ctx, result, duration, err); nerr != nil {
						logger.Warn("failure notification failed", zap.Error(nerr))
					}
					return
				}

				logger.Info("poll cycle complete",
					zap.Int("total", result.Total),
					zap.Int("success", result.Success),
					zap.Int("incomplete", result.Incomplete),
					zap.Int("failed", result.Failed),
					zap.Duration("duration", duration),
				)
				if result.Failed > 0 {
					if nerr := notifier.SendCycle(ctx, result, duration); nerr != nil {
						logger.Warn("cycle notification failed", zap.Error(nerr))
					}
				}
			}

			logger.Info("serve loop started",
				zap.Strings("underlyings", cfg.Serve.Underlyings),
				zap.Int("interval_sec", cfg.Serve.IntervalSec),
				zap.Bool("market_days_only", cfg.Serve.MarketDaysOnly),
			)

			runCycle()

			ticker := time.NewTicker(time.Duration(cfg.Serve.IntervalSec) * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down")
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return httpSrv.Shutdown(shutdownCtx)
				case err := <-serverErr:
					return err
				case <-ticker.C:
					runCycle()
				}
			}
		},
	}

	cmd.Flags().StringVarP(&expiration, "expiration", "e", "", "pin one expiration YYMMDD instead of rolling daily")

	return cmd
}
