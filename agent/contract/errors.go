package contract

import "errors"

var (
	// ErrPolicyViolation covers every SQL guard gate. Fatal to the single
	// tool call; never retried, never allowed to fall through to an
	// unguarded execution path.
	ErrPolicyViolation = errors.New("policy violation")

	// ErrBackendUnavailable marks datastore or retrieval failures that are
	// downgraded to error payloads at the gateway boundary.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrFlow is fatal to the whole external request: step ceiling
	// exceeded, self-handoff, or handoff to an unknown specialist.
	ErrFlow = errors.New("flow error")

	// ErrConfig marks initialization failures that must keep the service
	// from reporting itself ready.
	ErrConfig = errors.New("configuration error")

	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrValidation      = errors.New("validation failed")
)
