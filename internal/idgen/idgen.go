// Package idgen wraps the UUID generator so that it can be stubbed in tests.
// Callers should treat identifiers as opaque strings.
package idgen

import (
	"strings"

	"github.com/google/uuid"
)

// NewFunc returns a new globally unique identifier as string. Override in
// tests.
var NewFunc = func() string { return uuid.New().String() }

func New() string { return NewFunc() }

// RunID returns a compact identifier tagging one process run in logs, spans
// and the status payload.
func RunID() string {
	id := strings.ReplaceAll(New(), "-", "")
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}
