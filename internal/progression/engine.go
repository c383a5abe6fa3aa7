package progression

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/openretro/questlog/internal/canon"
	"github.com/openretro/questlog/internal/contract"
	"github.com/openretro/questlog/internal/event"
	"github.com/openretro/questlog/internal/eventlog"
	"github.com/openretro/questlog/internal/rules"
	"github.com/openretro/questlog/internal/store"
)

// DefaultMaxEvents bounds the number of log lines one Tick consumes. It
// bounds a single tick's latency, nothing else; callers loop Tick to drain.
const DefaultMaxEvents = 256

// Engine ingests the canonical event log and owns per-user progression
// state. Single-threaded and synchronous by contract: Tick is not
// reentrant, and concurrent mutators of one state database are out of
// contract. Callers serialize externally.
type Engine struct {
	store     *store.Store
	log       *eventlog.Log
	validator *contract.Validator
	logger    *slog.Logger
	now       func() time.Time
	maxEvents int

	// playOptions maps a PLAY option id to its own requirements, re-checked
	// at apply time.
	playOptions map[string][]rules.Requirement
	rawOptions  map[string]string

	// states caches loaded user states. The cache is authoritative between
	// Tick calls; dirty entries flush with the batch.
	states map[string]*State
	dirty  map[string]bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the time source (tests use a fixed clock).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMaxEvents sets the per-tick batch bound.
func WithMaxEvents(n int) Option {
	return func(e *Engine) { e.maxEvents = n }
}

// WithPlayOption registers a play option and its requirement expression.
// The expression uses the rule IF grammar; it is parsed during New and a
// malformed expression fails construction (first-party config error).
func WithPlayOption(id, ifExpr string) Option {
	return func(e *Engine) { e.rawOptions[id] = ifExpr }
}

// New constructs an engine over a state store and an event log. Seeds the
// known gate registry and compiles the adapter contract.
func New(st *store.Store, log *eventlog.Log, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:       st,
		log:         log,
		logger:      slog.Default(),
		now:         time.Now,
		maxEvents:   DefaultMaxEvents,
		playOptions: map[string][]rules.Requirement{},
		rawOptions:  map[string]string{},
		states:      map[string]*State{},
		dirty:       map[string]bool{},
	}
	for _, opt := range opts {
		opt(e)
	}

	validator, err := contract.New()
	if err != nil {
		return nil, &EngineError{Code: ErrCodeBadConfig, Message: err.Error()}
	}
	e.validator = validator

	for id, ifExpr := range e.rawOptions {
		reqs, err := rules.ParseIf(ifExpr)
		if err != nil {
			return nil, &EngineError{
				Code:    ErrCodeBadConfig,
				Message: fmt.Sprintf("play option %q: %v", id, err),
			}
		}
		e.playOptions[id] = reqs
	}

	ctx := context.Background()
	if err := st.EnsureGate(ctx, GateAmulet, "Amulet retrieved at or below dungeon depth 32"); err != nil {
		return nil, err
	}

	return e, nil
}

// TickResult summarizes one ingestion batch.
type TickResult struct {
	// Consumed is the number of complete log lines consumed, malformed
	// lines included.
	Consumed int
	// Processed is the number of successfully decoded events run through
	// the reducer or rejected by the adapter contract.
	Processed int
	// Applied counts events whose reduction changed state.
	Applied int
	// Skipped folds together malformed lines, contract-invalid events, and
	// semantically-no-op valid events. Consumers only assert the merged
	// total, so there is no finer breakdown.
	Skipped int
	// UnknownTypes lists distinct unrecognized event types, sorted.
	UnknownTypes []string
	// UnknownChanged counts unknown-type events that changed state. For an
	// untrusted log this must stay 0; trusted overrides can raise it.
	UnknownChanged int
	// RulesFired lists rule ids that fired during the post-batch pass.
	RulesFired []string
	// Notes carries informational diagnostics (neutralized overrides,
	// skipped lines). Notes are never errors.
	Notes []string
	// Offset is the cursor after this tick.
	Offset int64
}

// Tick consumes up to maxEvents complete lines from the cursor, reduces
// each event into its user's state, runs the rule pass for every touched
// user, and persists states plus cursor atomically — but only when at
// least one line was consumed.
//
// Tick is idempotent-safe across crashes: an uncommitted batch re-applies
// in full on the next call, a committed one never does.
func (e *Engine) Tick(ctx context.Context) (TickResult, error) {
	offset, err := e.store.Cursor(ctx)
	if err != nil {
		return TickResult{}, err
	}

	batch, err := e.log.ReadBatch(offset, e.maxEvents)
	if err != nil {
		return TickResult{}, err
	}

	res := TickResult{Offset: offset}
	touched := map[string]bool{}
	unknown := map[string]bool{}
	gates := &storeGates{ctx: ctx, engine: e}

	for _, line := range batch.Lines {
		res.Consumed++

		evt, err := event.DecodeLine(line)
		if err != nil {
			res.Notes = append(res.Notes, fmt.Sprintf("skipped malformed line at batch index %d", res.Consumed-1))
			continue
		}
		res.Processed++

		if evt.Username == "" {
			res.Notes = append(res.Notes, fmt.Sprintf("skipped %s event with no username", evt.Type))
			continue
		}

		if evt.Lane() == event.LaneUntrusted {
			if err := e.validator.Validate(evt); err != nil {
				res.Notes = append(res.Notes, fmt.Sprintf("contract: %v", err))
				continue
			}
		}

		st, err := e.state(ctx, evt.Username)
		if err != nil {
			return res, err
		}

		changed, notes := Reduce(st, evt, gates)
		res.Notes = append(res.Notes, notes...)
		touched[evt.Username] = true
		if changed {
			res.Applied++
			e.dirty[evt.Username] = true
		}
		if !event.KnownTypes[evt.Type] {
			unknown[evt.Type] = true
			if changed {
				res.UnknownChanged++
			}
		}
	}

	res.UnknownTypes = sortedKeys(unknown)

	if len(touched) > 0 {
		fired, notes, err := e.runRules(ctx, sortedKeys(touched), gates)
		if err != nil {
			return res, err
		}
		res.RulesFired = fired
		res.Notes = append(res.Notes, notes...)
	}

	res.Skipped = res.Consumed - res.Applied

	if res.Consumed > 0 {
		if err := e.flush(ctx, batch.NextOffset); err != nil {
			return res, err
		}
		res.Offset = batch.NextOffset
	}

	e.logger.Debug("tick complete",
		"consumed", res.Consumed,
		"applied", res.Applied,
		"skipped", res.Skipped,
		"offset", res.Offset)

	return res, nil
}

// runRules evaluates the global rule set id-sorted against each touched
// user's live state. Rules whose IF expression no longer parses are skipped
// with a note rather than aborting the pass.
func (e *Engine) runRules(ctx context.Context, usernames []string, gates GateBoard) ([]string, []string, error) {
	records, err := e.store.ListRules(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	var compiled []rules.Rule
	var notes []string
	for _, rec := range records {
		r, err := rules.Compile(rec.ID, rec.If, rec.Then, rec.Enabled, rec.Source)
		if err != nil {
			notes = append(notes, fmt.Sprintf("skipped unparseable rule %s: %v", rec.ID, err))
			continue
		}
		compiled = append(compiled, r)
	}

	var allFired []string
	for _, username := range usernames {
		st, err := e.state(ctx, username)
		if err != nil {
			return nil, nil, err
		}
		view := &stateView{state: st, gates: gates}
		fx := &ruleEffects{ctx: ctx, engine: e, state: st, view: view, notes: &notes}
		fired, evalNotes := rules.Evaluate(compiled, view, fx)
		allFired = append(allFired, fired...)
		notes = append(notes, evalNotes...)
		if e.dirty[username] {
			st.Recompute(gates.Completed(GateAmulet))
		}
	}
	return allFired, notes, nil
}

// flush persists every dirty state together with the cursor in one
// transaction, then clears the dirty set.
func (e *Engine) flush(ctx context.Context, offset int64) error {
	states := make(map[string]string, len(e.dirty))
	for username := range e.dirty {
		stored, err := e.states[username].MarshalStored()
		if err != nil {
			return err
		}
		states[username] = stored
	}
	if err := e.store.SaveBatch(ctx, states, offset, e.now()); err != nil {
		return err
	}
	e.dirty = map[string]bool{}
	return nil
}

// state returns the cached state for a username, loading or lazily
// creating it.
func (e *Engine) state(ctx context.Context, username string) (*State, error) {
	if st, ok := e.states[username]; ok {
		return st, nil
	}
	stored, found, err := e.store.LoadUserState(ctx, username)
	if err != nil {
		return nil, err
	}
	var st *State
	if found {
		st, err = UnmarshalStored(stored)
		if err != nil {
			return nil, err
		}
	} else {
		st = NewState(username)
	}
	e.states[username] = st
	return st, nil
}

// UserState returns a copy of a user's current state. A user with no
// history gets a fresh zero-progress state.
func (e *Engine) UserState(ctx context.Context, username string) (State, error) {
	st, err := e.state(ctx, username)
	if err != nil {
		return State{}, err
	}
	stored, err := st.MarshalStored()
	if err != nil {
		return State{}, err
	}
	clone, err := UnmarshalStored(stored)
	if err != nil {
		return State{}, err
	}
	return *clone, nil
}

// AddStat applies an explicit first-party stat mutation and persists it
// immediately. Unknown stat names fail fast with ErrCodeUnknownStat.
func (e *Engine) AddStat(ctx context.Context, username, stat string, delta int64) error {
	st, err := e.state(ctx, username)
	if err != nil {
		return err
	}
	if err := addStat(st, stat, delta); err != nil {
		return err
	}
	gates := &storeGates{ctx: ctx, engine: e}
	st.Recompute(gates.Completed(GateAmulet))

	stored, err := st.MarshalStored()
	if err != nil {
		return err
	}
	return e.store.SaveUserState(ctx, username, stored, e.now())
}

func addStat(st *State, stat string, delta int64) error {
	switch stat {
	case "xp":
		st.Stats.XP += delta
	case "hp":
		st.Stats.HP += delta
		if st.Stats.HP < 0 {
			st.Stats.HP = 0
		}
	case "gold":
		st.Stats.Gold += delta
	default:
		return &EngineError{Code: ErrCodeUnknownStat, Message: fmt.Sprintf("unknown stat %q", stat)}
	}
	return nil
}

// AddRule validates and stores a rule. The IF expression must parse; THEN
// text is stored verbatim since unparsed chunks are legal no-ops.
func (e *Engine) AddRule(ctx context.Context, id, ifExpr, thenExpr, source string) error {
	if _, err := rules.ParseIf(ifExpr); err != nil {
		return err
	}
	now := e.now()
	return e.store.UpsertRule(ctx, store.RuleRecord{
		ID:        id,
		If:        ifExpr,
		Then:      thenExpr,
		Enabled:   true,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// CanProceed reports whether late-stage progression is open: the amulet
// gate is complete.
func (e *Engine) CanProceed(ctx context.Context) (bool, error) {
	g, ok, err := e.store.GetGate(ctx, GateAmulet)
	if err != nil {
		return false, err
	}
	return ok && g.Completed, nil
}

// CompleteGate completes a registered gate idempotently. Unknown gate ids
// return ErrCodeUnknownGate.
func (e *Engine) CompleteGate(ctx context.Context, id, source string) error {
	_, ok, err := e.store.GetGate(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return &EngineError{Code: ErrCodeUnknownGate, Message: fmt.Sprintf("unknown gate %q", id)}
	}
	_, err = e.store.CompleteGate(ctx, id, source, e.now())
	return err
}

// Projection builds the full-state projection hashed by Checksum: every
// user's state plus the global gate board.
func (e *Engine) Projection(ctx context.Context) (map[string]any, error) {
	usernames, err := e.store.ListUsernames(ctx)
	if err != nil {
		return nil, err
	}
	for username := range e.states {
		if !slices.Contains(usernames, username) {
			usernames = append(usernames, username)
		}
	}
	slices.Sort(usernames)

	users := map[string]any{}
	for _, username := range usernames {
		st, err := e.state(ctx, username)
		if err != nil {
			return nil, err
		}
		proj, err := st.Projection()
		if err != nil {
			return nil, err
		}
		users[username] = proj
	}

	gateRecords, err := e.store.ListGates(ctx)
	if err != nil {
		return nil, err
	}
	gateList := make([]any, 0, len(gateRecords))
	for _, g := range gateRecords {
		entry := map[string]any{
			"id":        g.ID,
			"title":     g.Title,
			"completed": g.Completed,
		}
		if g.CompletedAt != nil {
			entry["completed_at"] = g.CompletedAt.UTC().Format(time.RFC3339)
			entry["completed_source"] = g.CompletedSource
		}
		gateList = append(gateList, entry)
	}

	return map[string]any{
		"users": users,
		"gates": gateList,
	}, nil
}

// Checksum hashes the canonical state projection. A pure function of
// semantic state: timestamps never influence it.
func (e *Engine) Checksum(ctx context.Context) (string, error) {
	proj, err := e.Projection(ctx)
	if err != nil {
		return "", err
	}
	return canon.Checksum(proj)
}

// Store exposes the underlying store for collaborators (lens flags, CLI).
func (e *Engine) Store() *store.Store {
	return e.store
}

// Log exposes the underlying event log.
func (e *Engine) Log() *eventlog.Log {
	return e.log
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
