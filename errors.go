package loom

import "errors"

var (
	// ErrOutOfSlots is returned by thread creation when every eligible core
	// is at capacity.
	ErrOutOfSlots = errors.New("loom: no core has a free thread slot")

	// ErrInvocationTooLarge is returned when a bound-argument record exceeds
	// the in-place invocation storage.
	ErrInvocationTooLarge = errors.New("loom: invocation record exceeds in-place storage")

	// ErrNotInitialized is returned by operations that require a running
	// scheduler before Init has completed.
	ErrNotInitialized = errors.New("loom: runtime not initialized")
)
