package detective

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/netinvestigate/client-detective/pkg/baseline"
	"github.com/netinvestigate/client-detective/pkg/classify"
	"github.com/netinvestigate/client-detective/pkg/record"
	"github.com/netinvestigate/client-detective/pkg/report"
	"github.com/netinvestigate/client-detective/pkg/session"
)

// Pipeline runs the classification stages for one investigation window.
// A Pipeline is single-threaded and batch-oriented: it operates purely on
// already-materialized in-memory records, with no concurrent mutation of
// shared state.
type Pipeline struct {
	cfg        *Config
	loc        *time.Location
	normalizer *record.Normalizer
	builder    *session.Builder
	classifier *classify.Classifier
	afterHours session.Band
}

// New validates the configuration and builds a Pipeline from it.
func New(cfg *Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	afterHours, err := cfg.AfterHoursBand()
	if err != nil {
		return nil, err
	}
	business, err := cfg.BusinessHoursBand()
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		cfg:        cfg,
		loc:        loc,
		normalizer: record.NewNormalizer(loc, cfg.EventTypes),
		builder:    session.NewBuilder(cfg.MergeGap),
		classifier: classify.NewClassifier(classify.Rules{
			BusinessHours: business,
			AfterHours:    afterHours,
			LoiteringMin:  cfg.LoiteringMin,
		}),
		afterHours: afterHours,
	}, nil
}

// Location returns the pipeline's local timezone.
func (p *Pipeline) Location() *time.Location {
	return p.loc
}

// AfterHours returns the configured after-hours band.
func (p *Pipeline) AfterHours() session.Band {
	return p.afterHours
}

// Summary reports run-level counts to the caller, including the
// data-quality exclusions that must never be silently dropped.
type Summary struct {
	// RunID uniquely identifies the run.
	RunID string

	// Events is the number of normalized connection events.
	Events int

	// ParseErrors counts raw records skipped during normalization.
	ParseErrors int

	// ExcludedDevices counts devices excluded for inconsistent data.
	ExcludedDevices int

	// Devices is the number of classified devices, baseline-only included.
	Devices int

	// Generated is when the run completed.
	Generated time.Time
}

// Result is the output of one investigation run.
type Result struct {
	// Report holds the per-category device collections.
	Report *report.Report

	// Extended is the extended-session report.
	Extended []classify.ExtendedSession

	// Events holds every normalized connection event of the run.
	Events []record.Event

	// Summary carries the run-level counts.
	Summary Summary
}

// Investigate classifies the raw records against the target window. The
// baseline window is derived from the configuration: BaselineDays days
// immediately preceding the target window start. Zero events for the whole
// window is not an error; it produces empty collections so the caller can
// report "no activity".
func (p *Pipeline) Investigate(raws []record.Raw, target session.Window) (*Result, error) {
	if err := target.Validate(); err != nil {
		return nil, err
	}

	events, parseErrors := p.normalizer.Normalize(raws)

	baselineWindow := baseline.Window(target, p.cfg.BaselineDays)
	baselineSessions := p.builder.Build(events, baselineWindow)
	targetSessions := p.builder.Build(events, target)

	idx := baseline.BuildIndex(baselineSessions, p.afterHours)
	devices, excluded := p.classifier.Classify(targetSessions, idx)
	extended := p.classifier.ExtendedSessions(targetSessions)

	result := &Result{
		Report:   report.Assemble(devices),
		Extended: extended,
		Events:   events,
		Summary: Summary{
			RunID:           uuid.NewString(),
			Events:          len(events),
			ParseErrors:     parseErrors,
			ExcludedDevices: excluded,
			Devices:         len(devices),
			Generated:       time.Now().In(p.loc),
		},
	}

	slog.Info("investigation complete",
		"run_id", result.Summary.RunID,
		"events", result.Summary.Events,
		"devices", result.Summary.Devices,
		"parse_errors", result.Summary.ParseErrors,
		"excluded_devices", result.Summary.ExcludedDevices,
		"target_start", target.Start.Format(time.RFC3339),
		"target_end", target.End.Format(time.RFC3339),
	)
	return result, nil
}

// NightWindow returns the after-hours occurrence anchored on the given
// investigation date: the default target window for a night investigation.
func (p *Pipeline) NightWindow(date time.Time) session.Window {
	return p.afterHours.WindowOn(date.In(p.loc))
}
