// teamcal materializes a team's iterations, days off, and free-form events
// into an ICS file for the calendar widget.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cpuguy83/teamcal/internal/auth"
	"github.com/cpuguy83/teamcal/internal/capacity"
	"github.com/cpuguy83/teamcal/internal/config"
	"github.com/cpuguy83/teamcal/internal/docstore"
	"github.com/cpuguy83/teamcal/internal/events"
	"github.com/cpuguy83/teamcal/internal/filter"
	"github.com/cpuguy83/teamcal/internal/freeform"
	"github.com/cpuguy83/teamcal/internal/sync"
	"github.com/cpuguy83/teamcal/internal/worktrack"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (default: ~/.config/teamcal/config.yaml)")
		verbose    = flag.Bool("v", false, "verbose logging")
		once       = flag.Bool("once", false, "sync once and exit")
	)
	flag.Parse()

	// Setup logging
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFrom(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("starting teamcal",
		"team", cfg.Service.Team,
		"interval", cfg.Sync.Interval,
		"output", cfg.Sync.Output,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *once); err != nil {
		slog.Error("teamcal failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, once bool) error {
	clientID := cfg.Service.ClientID
	if clientID == "" {
		clientID = auth.DefaultClientID
	}

	provider, err := auth.NewProvider(ctx, clientID)
	if err != nil {
		return err
	}
	defer provider.Close()

	client := worktrack.NewRESTClient(cfg.Service.URL, provider)

	team := worktrack.TeamContext{
		Project: cfg.Service.Project,
		Team:    cfg.Service.Team,
	}
	iterations := capacity.NewIterationCache(client, team)
	daysOff := capacity.NewTeamDaysOffStore(client, team)
	capacities := capacity.NewCapacityStore(client, team)

	materializer := events.NewMaterializer(iterations, daysOff, capacities, cfg.Service.TeamID, cfg.Service.Team)
	materializer.Links = events.Links{
		Iterations: fmt.Sprintf("%s/%s/_settings/work-team", cfg.Service.URL, cfg.Service.Project),
		Capacity:   fmt.Sprintf("%s/%s/_sprints/capacity/%s", cfg.Service.URL, cfg.Service.Project, cfg.Service.Team),
	}

	providers := []sync.Provider{
		{Name: "tracker", Provider: materializer},
	}

	if cfg.Docs.URL != "" {
		password, err := cfg.Docs.GetPassword()
		if err != nil {
			return err
		}
		docs, err := docstore.NewWebDAV(cfg.Docs.URL, cfg.Docs.Username, password)
		if err != nil {
			return err
		}
		providers = append(providers, sync.Provider{
			Name:     "docs",
			Provider: freeform.NewStore(docs, cfg.Service.TeamID),
		})
	}

	f, err := filter.New(cfg.Filters)
	if err != nil {
		return err
	}

	syncer := sync.NewSyncer(providers, sync.Options{
		Filter:   f,
		Interval: cfg.Sync.Interval,
		Past:     cfg.Window.Past,
		Future:   cfg.Window.Future,
		Output:   cfg.Sync.Output,
	})

	if once {
		_, err := syncer.Sync(ctx)
		return err
	}

	syncer.Run(ctx, func(res events.Result, err error) {
		if err != nil {
			slog.Warn("sync failed", "error", err)
			return
		}
		slog.Debug("sync ok",
			"events", len(res.Events),
			"iteration_categories", len(res.IterationCategories),
			"days_off_categories", len(res.DaysOffCategories),
		)
	})

	return nil
}
