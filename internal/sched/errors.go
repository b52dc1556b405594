package sched

import "errors"

var (
	// ErrTargetLost means the target was no longer active when (re)sampled.
	ErrTargetLost = errors.New("target lost")
	// ErrEstimationInvalid means no meaningful deadline could be derived.
	ErrEstimationInvalid = errors.New("deadline estimation invalid")

	ErrResourceHeld   = errors.New("resource already held")
	ErrNotHolder      = errors.New("task does not hold the resource")
	ErrAlreadyQueued  = errors.New("task already queued")
	ErrNoDeadline     = errors.New("task has no deadline")
	ErrAlreadyStarted = errors.New("supervisor already started")
)
