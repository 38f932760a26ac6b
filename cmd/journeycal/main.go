package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"journeycal/internal/config"
	appLog "journeycal/internal/log"
	"journeycal/internal/storage"
	"journeycal/internal/store"
)

const version = "0.1.0"

var (
	cfgFile string
	debug   bool
	strict  bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "journeycal",
		Short:         "Calendar of reminders with weather for the day and place",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "./config.yaml", "Path to config file")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&strict, "strict", false, "Fail instead of starting empty when a stored slot is corrupt")

	root.AddCommand(
		newServeCmd(),
		newGridCmd(),
		newEventsCmd(),
		newCalendarsCmd(),
		newCitiesCmd(),
		newForecastCmd(),
		newExportCmd(),
		newImportCmd(),
		newSyncCmd(),
		newSnapshotCmd(),
		newHashPasswordCmd(),
	)
	return root
}

func main() {
	defer appLog.Sync()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig reads --config, applies environment overrides and configures
// logging from the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgFile, err)
	}
	cfg.ApplyEnv()

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	appLog.Configure(level, cfg.Log.Format)
	return cfg, nil
}

// app is the loaded configuration plus the opened repositories.
type app struct {
	cfg       *config.Config
	events    *store.Events
	calendars *store.Calendars
	close     func() error
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	backend, closeFn, err := storage.Open(ctx, storage.Options{
		Driver:   cfg.Storage.Driver,
		Dir:      cfg.Storage.Dir,
		RedisURL: cfg.Storage.RedisURL,
		Prefix:   cfg.Storage.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	a := &app{
		cfg:       cfg,
		events:    store.NewEvents(backend),
		calendars: store.NewCalendars(backend),
		close:     closeFn,
	}
	if err := a.load(ctx); err != nil {
		_ = closeFn()
		return nil, err
	}
	return a, nil
}

func (a *app) load(ctx context.Context) error {
	status, err := a.events.Load(ctx)
	if err := a.checkLoad("events", err); err != nil {
		return err
	}
	appLog.Debug("events slot", "status", status.String(), "count", a.events.Count())

	status, err = a.calendars.Load(ctx)
	if err := a.checkLoad("calendars", err); err != nil {
		return err
	}
	appLog.Debug("calendars slot", "status", status.String())
	return nil
}

// checkLoad tolerates corrupt slots unless --strict is set. Persist errors
// on first-run seeding are logged and ignored.
func (a *app) checkLoad(slot string, err error) error {
	if err == nil {
		return nil
	}
	var corrupt *store.CorruptSlotError
	switch {
	case errors.As(err, &corrupt):
		if strict {
			return fmt.Errorf("%s: %w", slot, err)
		}
		appLog.Warn("stored slot is corrupt; starting from defaults", "slot", slot, "err", err.Error())
		return nil
	case errors.Is(err, store.ErrPersist):
		appLog.Warn("could not write initial slot", "slot", slot, "err", err.Error())
		return nil
	default:
		return fmt.Errorf("load %s: %w", slot, err)
	}
}

func (a *app) icsCacheDir() string {
	return filepath.Join(a.cfg.Storage.Dir, "ics-cache")
}
