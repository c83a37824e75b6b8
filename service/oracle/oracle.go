// Package oracle classifies identifiers as available or taken.
package oracle

import (
	"context"
	"errors"
)

// Status is the outcome of one probe.
type Status int

const (
	// Transient means the oracle could not be reached; the identifier is
	// retried later.
	Transient Status = iota
	// Available means the identifier is free.
	Available
	// Taken means the identifier is in use, or the answer was ambiguous.
	Taken
)

// String returns the status label used in logs and metrics.
func (s Status) String() string {
	switch s {
	case Available:
		return "available"
	case Taken:
		return "taken"
	default:
		return "transient"
	}
}

// Definitive reports whether the status settles the identifier.
func (s Status) Definitive() bool { return s == Available || s == Taken }

// ErrTransient wraps transport failures: unreachable host, timeout, reset.
var ErrTransient = errors.New("oracle unreachable")

// Result is a probe outcome with a short diagnostic.
type Result struct {
	Status Status
	Info   string
}

// Oracle probes one identifier. Implementations return a Transient result
// together with an error wrapping ErrTransient on transport failure.
type Oracle interface {
	Probe(ctx context.Context, id string) (Result, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, id string) (Result, error)

// Probe calls f.
func (f Func) Probe(ctx context.Context, id string) (Result, error) {
	return f(ctx, id)
}
