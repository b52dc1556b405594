// Package world declares the collaborators the scheduler talks to: a radar
// that reports targets and an actuator (the cannon) that engages them.
package world

import (
	"context"
	"io"
)

// Position is a point in the world grid. Y is the height above the
// critical line; a target at Y <= 0 has reached it.
type Position struct {
	X int
	Y int
}

// Status is what the radar reports for a tracked target.
type Status int

const (
	StatusActive Status = iota
	StatusIntercepted
	StatusImpacted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "Active"
	case StatusIntercepted:
		return "Intercepted"
	case StatusImpacted:
		return "Impacted"
	case StatusError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Target is an opaque handle to a tracked object.
type Target interface {
	Name() string
}

// Radar detects and tracks targets.
type Radar interface {
	// WaitTarget blocks until a new target is detected or ctx is done.
	WaitTarget(ctx context.Context) (Target, error)
	// Sample reads the current status and position of t. It never blocks.
	Sample(t Target) (Status, Position)
}

// Actuator is the single shared cannon.
type Actuator interface {
	Move(x int)
	Fire()
}

// Arrivals is implemented by worlds whose target production can be
// switched on and off.
type Arrivals interface {
	StartArrivals()
	StopArrivals()
}

// World bundles everything the supervisor needs.
type World interface {
	Radar
	Actuator
	io.Closer
}
