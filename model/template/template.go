// Package template defines the structural patterns identifier candidates are
// rendered from. Templates are immutable once a Catalog is built.
package template

import (
	"errors"
	"fmt"
	"strings"
)

// Character classes a slot can draw from.
const (
	Letters     = "abcdefghijklmnopqrstuvwxyz"
	Digits      = "0123456789"
	RareLetters = "zqxvjkyw"
)

// ErrInvalidTemplate is returned for malformed template definitions.
var ErrInvalidTemplate = errors.New("template: invalid template")

// Kind identifies a slot's character class.
type Kind int

const (
	Letter Kind = iota
	Digit
	Rare
	Literal
)

// Slot is one position of a template.
type Slot struct {
	Kind Kind
	Char byte // only used by Literal
}

// Alphabet returns the characters the slot draws from uniformly.
func (s Slot) Alphabet() string {
	switch s.Kind {
	case Letter:
		return Letters
	case Digit:
		return Digits
	case Rare:
		return RareLetters
	default:
		return string(s.Char)
	}
}

// String returns the pattern symbol of the slot.
func (s Slot) String() string {
	switch s.Kind {
	case Letter:
		return "L"
	case Digit:
		return "D"
	case Rare:
		return "R"
	default:
		return string(s.Char)
	}
}

// Template is a named slot sequence with a prior sampling weight.
type Template struct {
	Key        string
	Slots      []Slot
	BaseWeight float64
}

// Parse builds a template from a pattern string where L, D and R denote the
// letter, digit and rare-letter classes and every other character is a literal.
func Parse(key, pattern string, baseWeight float64) (*Template, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidTemplate)
	}
	if pattern == "" {
		return nil, fmt.Errorf("%w: %s: empty pattern", ErrInvalidTemplate, key)
	}
	if baseWeight < 0 {
		return nil, fmt.Errorf("%w: %s: negative base weight %v", ErrInvalidTemplate, key, baseWeight)
	}
	slots := make([]Slot, 0, len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case 'L':
			slots = append(slots, Slot{Kind: Letter})
		case 'D':
			slots = append(slots, Slot{Kind: Digit})
		case 'R':
			slots = append(slots, Slot{Kind: Rare})
		default:
			slots = append(slots, Slot{Kind: Literal, Char: c})
		}
	}
	return &Template{Key: key, Slots: slots, BaseWeight: baseWeight}, nil
}

// MustParse is Parse for static definitions; it panics on error.
func MustParse(key, pattern string, baseWeight float64) *Template {
	t, err := Parse(key, pattern, baseWeight)
	if err != nil {
		panic(err)
	}
	return t
}

// Pattern returns the slot sequence in Parse notation.
func (t *Template) Pattern() string {
	var sb strings.Builder
	for _, s := range t.Slots {
		sb.WriteString(s.String())
	}
	return sb.String()
}

// Len returns the rendered identifier length.
func (t *Template) Len() int { return len(t.Slots) }
