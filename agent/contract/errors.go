package contract

import "errors"

var (
	// ErrConfiguration marks a missing credential or setting. Deterministic,
	// never retried, surfaced as an "unavailable" tool/feature result.
	ErrConfiguration = errors.New("configuration missing")
	// ErrTransient marks a timeout or unreachable dependency. The turn
	// proceeds with degraded context; no within-turn retry.
	ErrTransient = errors.New("transient failure")
	// ErrValidation marks malformed input or tool arguments.
	ErrValidation = errors.New("validation failed")
	// ErrSchemaViolation marks model output that fails the structured-plan
	// schema; it triggers the no-tools, no-memory-write fallback plan.
	ErrSchemaViolation = errors.New("model response violates schema")
	// ErrModelInvoke is the only error allowed to abort a turn.
	ErrModelInvoke = errors.New("model invoke failed")
)
