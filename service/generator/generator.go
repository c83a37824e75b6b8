// Package generator renders templates into concrete identifier candidates.
// It is pure: uniqueness is enforced by callers through the exclusion set.
package generator

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/viant/handlegen/model/template"
)

// MaxAttempts bounds the render/validate loop for a single template before
// falling back to another one.
const MaxAttempts = 10

// ErrGeneration is returned when neither the requested template nor any
// fallback produced a valid identifier.
var ErrGeneration = errors.New("generator: no valid candidate")

// Valid reports whether id is a syntactically acceptable handle: lowercase
// letters, digits, '.' and '_' only, no leading or trailing '.', no "..".
func Valid(id string) bool {
	if id == "" {
		return false
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_':
		case c == '.':
			if i == 0 || i == len(id)-1 || id[i-1] == '.' {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Render draws each slot uniformly from its alphabet.
func Render(t *template.Template, rnd *rand.Rand) string {
	buf := make([]byte, len(t.Slots))
	for i, slot := range t.Slots {
		alphabet := slot.Alphabet()
		buf[i] = alphabet[rnd.IntN(len(alphabet))]
	}
	return string(buf)
}

// Generator renders candidates with a bounded fallback across the catalog.
type Generator struct {
	catalog  *template.Catalog
	attempts int
}

// New creates a generator over catalog.
func New(catalog *template.Catalog) *Generator {
	return &Generator{catalog: catalog, attempts: MaxAttempts}
}

// Catalog returns the generator's catalog.
func (g *Generator) Catalog() *template.Catalog { return g.catalog }

// Generate renders a valid identifier from t, or from a uniformly chosen
// template when t is nil. It returns the identifier and the key of the
// template that actually produced it, which differs from t only when the
// fallback kicked in.
func (g *Generator) Generate(t *template.Template, rnd *rand.Rand) (string, string, error) {
	if t == nil {
		t = g.catalog.At(rnd.IntN(g.catalog.Len()))
	}
	current := t
	for round := 0; round <= g.catalog.Len(); round++ {
		for i := 0; i < g.attempts; i++ {
			if id := Render(current, rnd); Valid(id) {
				return id, current.Key, nil
			}
		}
		next := g.fallback(current, rnd)
		if next == nil {
			break
		}
		current = next
	}
	return "", "", fmt.Errorf("%w: template %s", ErrGeneration, t.Key)
}

// fallback picks a template other than current uniformly at random.
func (g *Generator) fallback(current *template.Template, rnd *rand.Rand) *template.Template {
	n := g.catalog.Len()
	if n < 2 {
		return nil
	}
	i := rnd.IntN(n - 1)
	if candidate := g.catalog.At(i); candidate.Key != current.Key {
		return candidate
	}
	return g.catalog.At(n - 1)
}
