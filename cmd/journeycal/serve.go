package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"journeycal/internal/ics"
	appLog "journeycal/internal/log"
	"journeycal/internal/metrics"
	"journeycal/internal/scheduler"
	"journeycal/internal/weather"
	"journeycal/internal/web"
)

const (
	jobWeatherRefresh = "weather-refresh"
	jobICSSync        = "ics-sync"
)

func newServeCmd() *cobra.Command {
	var listen string
	var noJobs bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					appLog.Info("signal received, shutting down", "signal", sig.String())
					cancel()
				case <-ctx.Done():
				}
			}()

			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if listen != "" {
				a.cfg.Listen = listen
			}
			appLog.Info("journeycal starting", "version", version)
			appLog.Info("effective config",
				"listen", a.cfg.Listen,
				"timezone", a.cfg.Timezone,
				"storage", a.cfg.Storage.Driver,
				"refresh", a.cfg.RefreshCron,
				"ics_count", len(a.cfg.ICS),
				"events", a.events.Count(),
			)

			m := metrics.New()
			m.RegisterEventCount(a.events.Count)

			wx := newWeatherClient(a, m.ObserveUpstream)
			loc := a.cfg.Location()

			if !noJobs {
				sched := scheduler.New(loc, 0, m.ObserveJob)
				refresher := scheduler.NewWeatherRefresher(a.events, wx, loc)
				if err := sched.Add(a.cfg.RefreshCron, jobWeatherRefresh, func(ctx context.Context) error {
					_, err := refresher.Refresh(ctx)
					return err
				}); err != nil {
					return err
				}
				if len(a.cfg.ICS) > 0 {
					syncer := ics.NewSyncer(ics.NewFetcher(a.icsCacheDir(), nil), a.events, loc)
					sources := ics.SourcesFromConfig(a.cfg.ICS)
					if err := sched.Add(a.cfg.RefreshCron, jobICSSync, func(ctx context.Context) error {
						_, err := syncer.Sync(ctx, sources)
						return err
					}); err != nil {
						return err
					}
				}
				sched.Start(ctx)
				defer sched.Stop()
				if len(a.cfg.ICS) > 0 {
					go func() { _ = sched.RunNow(jobICSSync) }()
				}
			}

			srv := web.NewServer(web.Deps{
				Config:    a.cfg,
				Events:    a.events,
				Calendars: a.calendars,
				Weather:   wx,
				Metrics:   m,
			})
			err = srv.ListenAndServe(ctx)
			appLog.Info("journeycal exiting")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config if set)")
	cmd.Flags().BoolVar(&noJobs, "no-jobs", false, "Do not run the weather refresh and ICS sync jobs")
	return cmd
}

func newWeatherClient(a *app, observe func(string, time.Duration, error)) *weather.Client {
	return weather.New(weather.Options{
		GeocodingURL:  a.cfg.Weather.GeocodingURL,
		ForecastURL:   a.cfg.Weather.ForecastURL,
		Timeout:       a.cfg.Weather.Timeout(),
		RatePerSecond: a.cfg.Weather.RatePerSecond,
		Language:      a.cfg.Weather.Language,
		Count:         a.cfg.Weather.Count,
		Observe:       observe,
	})
}
