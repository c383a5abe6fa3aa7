package harness

// Scenario is one YAML conformance scenario: a seed, a sequence of
// producer steps, and assertions over the resulting progression state.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// Seed is an inline place seed JSON document. Required only when the
	// scenario uses map steps.
	Seed string `yaml:"seed,omitempty"`

	// Rules are installed before any step runs.
	Rules []RuleSpec `yaml:"rules,omitempty"`

	// PlayOptions maps PLAY option ids to their requirement expressions.
	PlayOptions map[string]string `yaml:"play_options,omitempty"`

	// Steps run in order. Each step is either a map runtime op or a raw
	// adapter event appended to the log.
	Steps []Step `yaml:"steps"`

	// Assertions validate the drained final state.
	Assertions []Assertion `yaml:"assertions"`
}

// RuleSpec installs one rule.
type RuleSpec struct {
	ID   string `yaml:"id"`
	If   string `yaml:"if"`
	Then string `yaml:"then"`
}

// Step is a tagged union: exactly one of Map or Event is set.
type Step struct {
	Map   *MapStep   `yaml:"map,omitempty"`
	Event *EventStep `yaml:"event,omitempty"`
}

// MapStep runs one map runtime operation.
type MapStep struct {
	Op       string `yaml:"op"`
	Username string `yaml:"username"`
	Place    string `yaml:"place,omitempty"`
	To       string `yaml:"to,omitempty"`
	Point    string `yaml:"point,omitempty"`
	Quest    string `yaml:"quest,omitempty"`
	Steps    int64  `yaml:"steps,omitempty"`

	// ExpectBlocked asserts a move outcome: "", "edge", or "portal".
	ExpectBlocked string `yaml:"expect_blocked,omitempty"`
}

// EventStep appends one raw event to the log, standing in for an external
// adapter producer.
type EventStep struct {
	Source   string         `yaml:"source"`
	Username string         `yaml:"username"`
	Type     string         `yaml:"type"`
	Payload  map[string]any `yaml:"payload,omitempty"`
}

// Assertion validates one fact about the final state.
//
// Types: "stat" (username/stat/op/value), "metric" (username/metric/value),
// "gate" (gate/completed), "token" (username/token), "achievement"
// (username/achievement), "can_proceed" (value), "rules_fired" (rules).
type Assertion struct {
	Type string `yaml:"type"`

	Username    string   `yaml:"username,omitempty"`
	Stat        string   `yaml:"stat,omitempty"`
	Op          string   `yaml:"op,omitempty"`
	Value       int64    `yaml:"value,omitempty"`
	Metric      string   `yaml:"metric,omitempty"`
	Gate        string   `yaml:"gate,omitempty"`
	Completed   bool     `yaml:"completed,omitempty"`
	Token       string   `yaml:"token,omitempty"`
	Achievement string   `yaml:"achievement,omitempty"`
	Bool        bool     `yaml:"bool,omitempty"`
	Rules       []string `yaml:"rules,omitempty"`
}

// Result is the drained outcome of one scenario run.
type Result struct {
	// Projection is the engine's full canonical state projection.
	Projection map[string]any

	// Checksum hashes the projection.
	Checksum string

	// EventsTotal and EventsApplied accumulate across drain ticks.
	EventsTotal   int
	EventsApplied int

	// RulesFired lists every rule id that fired, in firing order.
	RulesFired []string

	// Notes accumulates informational reducer and rule notes.
	Notes []string
}
