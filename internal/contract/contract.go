// Package contract validates untrusted-lane events against the versioned
// adapter contract. The contract declares required payload fields per event
// type in CUE; the engine rejects adapter events that do not satisfy it
// before they ever reach the reducer.
package contract

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/openretro/questlog/internal/event"
)

//go:embed contract.cue
var contractCUE string

// ValidationError reports an adapter payload that violates the contract.
type ValidationError struct {
	EventType string
	Message   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("contract violation for %s: %s", e.EventType, e.Message)
}

// Validator checks adapter event payloads against the embedded contract.
// Construct once and reuse; cue.Context is not cheap to build.
type Validator struct {
	ctx      *cue.Context
	payloads cue.Value
	version  string
}

// New compiles the embedded contract. Fails only on a broken contract file,
// which is a programmer error, not an input error.
func New() (*Validator, error) {
	ctx := cuecontext.New()

	root := ctx.CompileString(contractCUE)
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile contract: %s", cueerrors.Details(err, nil))
	}

	version, err := root.LookupPath(cue.ParsePath("version")).String()
	if err != nil {
		return nil, fmt.Errorf("contract missing version: %w", err)
	}

	payloads := root.LookupPath(cue.ParsePath("payloads"))
	if !payloads.Exists() {
		return nil, fmt.Errorf("contract missing payloads block")
	}

	return &Validator{ctx: ctx, payloads: payloads, version: version}, nil
}

// Version returns the contract version string (e.g. "v1").
func (v *Validator) Version() string {
	return v.version
}

// Validate checks an event's payload against its per-type contract.
//
// Unknown event types have no contract and pass; the reducer gives them zero
// reward regardless. Trusted-lane callers may invoke Validate too, but the
// engine only enforces it on untrusted lanes.
func (v *Validator) Validate(e event.Event) error {
	schema := v.payloads.LookupPath(cue.MakePath(cue.Str(e.Type)))
	if !schema.Exists() {
		return nil
	}

	// JSON is a subset of CUE, so the payload compiles directly.
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return &ValidationError{EventType: e.Type, Message: err.Error()}
	}
	payloadVal := v.ctx.CompileBytes(data)
	if err := payloadVal.Err(); err != nil {
		return &ValidationError{EventType: e.Type, Message: cueerrors.Details(err, nil)}
	}

	unified := schema.Unify(payloadVal)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{EventType: e.Type, Message: cueerrors.Details(err, nil)}
	}
	return nil
}
