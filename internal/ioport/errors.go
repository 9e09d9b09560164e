package ioport

import "errors"

var (
	// ErrOutOfRange is returned for a logical index outside the pool.
	ErrOutOfRange = errors.New("ioport: port out of range")

	// ErrAlreadyClaimed is returned when claiming a claimed port.
	ErrAlreadyClaimed = errors.New("ioport: port already claimed")

	// ErrCapability is returned when a trigger mode is unsupported by the
	// line, or an interrupt callback is missing.
	ErrCapability = errors.New("ioport: capability mismatch")

	// ErrBusy is returned when swapping an input with a live interrupt binding.
	ErrBusy = errors.New("ioport: interrupt binding active")

	// ErrTimeout is returned when a wait exhausts its budget.
	ErrTimeout = errors.New("ioport: wait timed out")

	// ErrAborted is returned when the global abort is raised mid-wait.
	ErrAborted = errors.New("ioport: wait aborted")
)
