package policy

import "errors"

var (
	// ErrInvalidPolicy indicates a policy with an empty name or a nil policy.
	ErrInvalidPolicy = errors.New("policy: invalid policy")

	// ErrDuplicatePolicy indicates a policy name is already registered.
	ErrDuplicatePolicy = errors.New("policy: duplicate policy")

	// ErrRegistryFrozen indicates registration after the evaluator has been used.
	ErrRegistryFrozen = errors.New("policy: registry is frozen")
)
