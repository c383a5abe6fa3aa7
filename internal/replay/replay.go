// Package replay proves the event log is the single source of truth: it
// drives a fresh progression engine over a supplied log until exhaustion
// and emits a checksummed report. Two replays of the same log from the
// same starting state must report the same checksum_after, regardless of
// which producer wrote the events.
package replay

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/openretro/questlog/internal/eventlog"
	"github.com/openretro/questlog/internal/progression"
	"github.com/openretro/questlog/internal/store"
)

// Report is the replay outcome. Counts fold malformed lines and
// semantically-no-op valid events into events_skipped together; consumers
// assert the merged total only.
type Report struct {
	RunID                string   `json:"run_id"`
	GeneratedAt          string   `json:"generated_at"`
	LogPath              string   `json:"log_path"`
	Ticks                int      `json:"ticks"`
	EventsTotal          int      `json:"events_total"`
	EventsProcessed      int      `json:"events_processed"`
	EventsApplied        int      `json:"events_applied"`
	EventsSkipped        int      `json:"events_skipped"`
	UnknownEventTypes    []string `json:"unknown_event_types"`
	UnknownEventsChanged int      `json:"unknown_events_changed"`
	ChecksumBefore       string   `json:"checksum_before"`
	ChecksumAfter        string   `json:"checksum_after"`
}

// Runner replays event logs into isolated engines.
type Runner struct {
	tokens RunTokenGenerator
	logger *slog.Logger
	now    func() time.Time
	opts   []progression.Option
}

// Option configures a Runner.
type Option func(*Runner)

// WithTokenGenerator overrides the run token source.
func WithTokenGenerator(gen RunTokenGenerator) Option {
	return func(r *Runner) { r.tokens = gen }
}

// WithClock overrides the report timestamp source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithEngineOptions passes options through to the replayed engine.
func WithEngineOptions(opts ...progression.Option) Option {
	return func(r *Runner) { r.opts = append(r.opts, opts...) }
}

// NewRunner constructs a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		tokens: UUIDv7Generator{},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run replays the log at logPath into a fresh engine backed by the state
// database at statePath. It loops Tick until a batch consumes zero lines,
// accumulating the per-tick counters into one report.
//
// The state database should be empty or a deliberate starting snapshot:
// the report's checksum_before records which.
func (r *Runner) Run(ctx context.Context, logPath, statePath string) (Report, error) {
	st, err := store.Open(statePath)
	if err != nil {
		return Report{}, err
	}
	defer st.Close()

	log := eventlog.Open(logPath)
	engine, err := progression.New(st, log, r.opts...)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		RunID:       r.tokens.Generate(),
		GeneratedAt: r.now().UTC().Format(time.RFC3339),
		LogPath:     logPath,
	}

	report.ChecksumBefore, err = engine.Checksum(ctx)
	if err != nil {
		return Report{}, err
	}

	unknown := map[string]bool{}
	for {
		res, err := engine.Tick(ctx)
		if err != nil {
			return Report{}, err
		}
		if res.Consumed == 0 {
			break
		}
		report.Ticks++
		report.EventsTotal += res.Consumed
		report.EventsProcessed += res.Processed
		report.EventsApplied += res.Applied
		report.EventsSkipped += res.Skipped
		report.UnknownEventsChanged += res.UnknownChanged
		for _, typ := range res.UnknownTypes {
			unknown[typ] = true
		}
	}
	report.UnknownEventTypes = sortedKeys(unknown)

	report.ChecksumAfter, err = engine.Checksum(ctx)
	if err != nil {
		return Report{}, err
	}

	r.logger.Info("replay complete",
		"run_id", report.RunID,
		"events_total", report.EventsTotal,
		"events_applied", report.EventsApplied,
		"checksum_after", report.ChecksumAfter)

	return report, nil
}

func sortedKeys(m map[string]bool) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
