// Package harness is the conformance harness: YAML scenarios drive real
// producers (map runtime ops or raw adapter events) through a fresh engine
// and assert on the drained state. Deterministic clocks make runs
// reproducible enough for golden comparison.
package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/openretro/questlog/internal/eventlog"
	"github.com/openretro/questlog/internal/maprun"
	"github.com/openretro/questlog/internal/progression"
	"github.com/openretro/questlog/internal/store"
	"github.com/openretro/questlog/internal/testutil"
)

// LoadScenario reads and validates one scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s has no name", path)
	}
	for i, step := range s.Steps {
		if (step.Map == nil) == (step.Event == nil) {
			return nil, fmt.Errorf("scenario %s step %d: exactly one of map or event required", s.Name, i)
		}
		if step.Map != nil && s.Seed == "" {
			return nil, fmt.Errorf("scenario %s uses map steps but has no seed", s.Name)
		}
	}
	return &s, nil
}

// Run executes a scenario in an isolated temp directory: install rules,
// run every step, drain the engine, evaluate assertions. Assertion
// failures are errors; the caller decides whether they fail a test.
func Run(s *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "questlog-harness-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	ctx := context.Background()
	clock := testutil.NewDeterministicClock(
		time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), time.Second)

	st, err := store.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, err
	}
	defer st.Close()

	log := eventlog.Open(filepath.Join(dir, "events.jsonl"))

	engineOpts := []progression.Option{progression.WithClock(clock.Now)}
	for id, expr := range s.PlayOptions {
		engineOpts = append(engineOpts, progression.WithPlayOption(id, expr))
	}
	engine, err := progression.New(st, log, engineOpts...)
	if err != nil {
		return nil, err
	}

	for _, r := range s.Rules {
		if err := engine.AddRule(ctx, r.ID, r.If, r.Then, "harness"); err != nil {
			return nil, fmt.Errorf("rule %s: %w", r.ID, err)
		}
	}

	var runtime *maprun.Runtime
	if s.Seed != "" {
		graph, err := maprun.Parse([]byte(s.Seed))
		if err != nil {
			return nil, err
		}
		runtime = maprun.New(graph, st, log, maprun.WithClock(clock.Now))
	}

	for i, step := range s.Steps {
		if err := runStep(ctx, log, runtime, clock, step); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	result := &Result{}
	for {
		res, err := engine.Tick(ctx)
		if err != nil {
			return nil, err
		}
		if res.Consumed == 0 {
			break
		}
		result.EventsTotal += res.Consumed
		result.EventsApplied += res.Applied
		result.RulesFired = append(result.RulesFired, res.RulesFired...)
		result.Notes = append(result.Notes, res.Notes...)
	}

	result.Projection, err = engine.Projection(ctx)
	if err != nil {
		return nil, err
	}
	result.Checksum, err = engine.Checksum(ctx)
	if err != nil {
		return nil, err
	}

	for i, a := range s.Assertions {
		if err := evaluate(ctx, engine, result, a); err != nil {
			return nil, fmt.Errorf("assertion %d (%s): %w", i, a.Type, err)
		}
	}

	return result, nil
}

func runStep(ctx context.Context, log *eventlog.Log, runtime *maprun.Runtime, clock *testutil.DeterministicClock, step Step) error {
	if step.Event != nil {
		return appendEvent(log, clock, step.Event)
	}

	m := step.Map
	switch m.Op {
	case "enter":
		_, err := runtime.Enter(ctx, m.Username, m.Place)
		return err
	case "move":
		res, err := runtime.Move(ctx, m.Username, m.To)
		if err != nil {
			return err
		}
		if res.Blocked != m.ExpectBlocked {
			return fmt.Errorf("move %s: blocked=%q, expected %q", m.To, res.Blocked, m.ExpectBlocked)
		}
		return nil
	case "inspect":
		_, err := runtime.Inspect(ctx, m.Username)
		return err
	case "interact":
		return runtime.Interact(ctx, m.Username, m.Point)
	case "complete":
		return runtime.Complete(ctx, m.Username, m.Quest)
	case "tick":
		_, err := runtime.Tick(ctx, m.Username, m.Steps)
		return err
	default:
		return fmt.Errorf("unknown map op %q", m.Op)
	}
}

func appendEvent(log *eventlog.Log, clock *testutil.DeterministicClock, e *EventStep) error {
	return log.Append(eventFromStep(e, clock.Now()))
}
