// Package app assembles a configured investigation run: it selects the
// data source (vendor API or a previously collected CSV log), invokes the
// classification pipeline and persists the exports to the run history.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/netinvestigate/client-detective/pkg/detective"
	"github.com/netinvestigate/client-detective/pkg/history"
	"github.com/netinvestigate/client-detective/pkg/meraki"
	"github.com/netinvestigate/client-detective/pkg/record"
	"github.com/netinvestigate/client-detective/pkg/report"
	"github.com/netinvestigate/client-detective/pkg/session"
)

// App runs investigations against a configured network.
type App struct {
	cfg      *detective.Config
	pipeline *detective.Pipeline
	client   *meraki.Client
	store    *history.Store
}

// New validates the configuration and assembles the application.
func New(cfg *detective.Config) (*App, error) {
	pipeline, err := detective.New(cfg)
	if err != nil {
		return nil, err
	}

	var client *meraki.Client
	if cfg.Meraki.APIKey != "" {
		client = meraki.NewClient(cfg.Meraki.APIKey,
			meraki.WithBaseURL(cfg.Meraki.BaseURL),
			meraki.WithPerPage(cfg.Meraki.PerPage),
		)
	}

	return &App{
		cfg:      cfg,
		pipeline: pipeline,
		client:   client,
		store:    history.NewStore(cfg.History.Dir),
	}, nil
}

// Pipeline exposes the classification pipeline, mainly for window
// computation by the CLI.
func (a *App) Pipeline() *detective.Pipeline {
	return a.pipeline
}

// Client returns the vendor API client, or nil when no API key is
// configured.
func (a *App) Client() *meraki.Client {
	return a.client
}

// Store returns the run-history store.
func (a *App) Store() *history.Store {
	return a.store
}

// RunResult reports where a completed run's exports were written.
type RunResult struct {
	Summary detective.Summary
	RunDir  string
	Files   []string
}

// InvestigateAPI fetches baseline and target events from the vendor API
// and classifies them. The baseline is collected night cycle by night
// cycle: for each baseline day, the after-hours occurrence anchored on
// that day, which rolls past midnight into the following morning.
func (a *App) InvestigateAPI(ctx context.Context, target session.Window) (*RunResult, error) {
	if a.client == nil {
		return nil, fmt.Errorf("no API key configured")
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	networkID := a.cfg.Meraki.NetworkID
	recent, err := a.client.Probe(ctx, networkID)
	if err != nil {
		return nil, err
	}
	if recent == 0 {
		slog.Warn("no recent wireless events on network", "network", networkID)
	}

	var raws []record.Raw

	for day := a.cfg.BaselineDays; day >= 1; day-- {
		cycle := a.pipeline.AfterHours().WindowOn(target.Start.AddDate(0, 0, -day))
		events, err := a.client.EventsBetween(ctx, networkID, cycle.Start, cycle.End)
		if err != nil {
			return nil, fmt.Errorf("collecting baseline day -%d: %w", day, err)
		}
		slog.Info("collected baseline night cycle",
			"day", cycle.Start.Format("2006-01-02"),
			"events", len(events),
		)
		raws = append(raws, rawsFromEvents(events, networkID)...)
	}

	targetEvents, err := a.client.EventsBetween(ctx, networkID, target.Start, target.End)
	if err != nil {
		return nil, fmt.Errorf("collecting target window: %w", err)
	}
	raws = append(raws, rawsFromEvents(targetEvents, networkID)...)

	description := fmt.Sprintf("API investigation %s to %s (network %s)",
		target.Start.Format(time.RFC3339), target.End.Format(time.RFC3339), networkID)
	return a.analyze(raws, target, description)
}

// InvestigateCSV loads a previously collected connection log and
// classifies it against the target window.
func (a *App) InvestigateCSV(path string, target session.Window) (*RunResult, error) {
	// #nosec G304 -- path is an operator-selected dataset
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening CSV source: %w", err)
	}
	defer f.Close()

	raws, err := report.ReadConnectionsCSV(f)
	if err != nil {
		return nil, fmt.Errorf("loading CSV source: %w", err)
	}
	slog.Info("loaded CSV data source", "path", path, "records", len(raws))

	description := fmt.Sprintf("CSV investigation %s to %s (source %s)",
		target.Start.Format(time.RFC3339), target.End.Format(time.RFC3339), filepath.Base(path))
	return a.analyze(raws, target, description)
}

// analyze runs the pipeline and persists the exports to a fresh history
// run directory.
func (a *App) analyze(raws []record.Raw, target session.Window, description string) (*RunResult, error) {
	result, err := a.pipeline.Investigate(raws, target)
	if err != nil {
		return nil, err
	}

	run, err := a.store.CreateRun(description)
	if err != nil {
		return nil, err
	}
	run.Meta.RunID = result.Summary.RunID

	files, err := report.Export(run.Path, result.Report, result.Events, result.Extended)
	if err != nil {
		return nil, fmt.Errorf("exporting run: %w", err)
	}
	if err := run.Finalize(files); err != nil {
		return nil, err
	}

	return &RunResult{Summary: result.Summary, RunDir: run.Path, Files: files}, nil
}

// CollectLog fetches a rolling window of raw connection records, one day
// at a time, streaming each day to a collected log CSV for later offline
// analysis. It returns the log path and the number of records written.
func (a *App) CollectLog(ctx context.Context, days int) (string, int, error) {
	if a.client == nil {
		return "", 0, fmt.Errorf("no API key configured")
	}
	if days < 1 {
		return "", 0, fmt.Errorf("collection days must be at least 1, got %d", days)
	}

	run, err := a.store.CreateRun(fmt.Sprintf("%d-day log collection", days))
	if err != nil {
		return "", 0, err
	}

	name := fmt.Sprintf("last_%d_days_log.csv", days)
	path := filepath.Join(run.Path, name)
	f, err := os.Create(path) // #nosec G304 -- path is within the run directory
	if err != nil {
		return "", 0, fmt.Errorf("creating collected log: %w", err)
	}
	defer f.Close()

	writer, err := report.NewConnectionWriter(f)
	if err != nil {
		return "", 0, err
	}

	networkID := a.cfg.Meraki.NetworkID
	loc := a.pipeline.Location()
	now := time.Now().In(loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	total := 0
	normalizer := record.NewNormalizer(loc, a.cfg.EventTypes)
	for day := days; day >= 1; day-- {
		dayStart := today.AddDate(0, 0, -day)
		events, err := a.client.EventsBetween(ctx, networkID, dayStart, dayStart.AddDate(0, 0, 1))
		if err != nil {
			return "", 0, fmt.Errorf("collecting day %s: %w", dayStart.Format("2006-01-02"), err)
		}

		normalized, _ := normalizer.Normalize(rawsFromEvents(events, networkID))
		if err := writer.Write(normalized); err != nil {
			return "", 0, err
		}
		total += len(normalized)
		slog.Info("collected day", "day", dayStart.Format("2006-01-02"), "connections", len(normalized))
	}
	if err := writer.Flush(); err != nil {
		return "", 0, err
	}

	if total == 0 {
		_ = os.Remove(path)
		_ = run.Finalize(nil)
		return "", 0, nil
	}
	if err := run.Finalize([]string{name}); err != nil {
		return "", 0, err
	}
	return path, total, nil
}

func rawsFromEvents(events []meraki.Event, networkID string) []record.Raw {
	raws := make([]record.Raw, 0, len(events))
	for _, ev := range events {
		raws = append(raws, ev.Raw(networkID))
	}
	return raws
}
