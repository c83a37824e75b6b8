package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		name    string
		key     string
		pattern string
		weight  float64
		kinds   []Kind
		wantErr bool
	}{
		{name: "classes", key: "LDR", pattern: "LDR", weight: 1, kinds: []Kind{Letter, Digit, Rare}},
		{name: "literals", key: "L_DD", pattern: "L_DD", weight: 4, kinds: []Kind{Letter, Literal, Digit, Digit}},
		{name: "dot", key: "L.LD", pattern: "L.LD", weight: 4, kinds: []Kind{Letter, Literal, Letter, Digit}},
		{name: "empty key", key: " ", pattern: "LD", wantErr: true},
		{name: "empty pattern", key: "x", pattern: "", wantErr: true},
		{name: "negative weight", key: "x", pattern: "LD", weight: -1, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			tpl, err := Parse(tc.key, tc.pattern, tc.weight)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTemplate)
				return
			}
			require.NoError(t, err)
			require.Len(t, tpl.Slots, len(tc.kinds))
			for i, kind := range tc.kinds {
				assert.Equal(t, kind, tpl.Slots[i].Kind)
			}
			assert.Equal(t, tc.pattern, tpl.Pattern())
			assert.Equal(t, len(tc.pattern), tpl.Len())
		})
	}
}

func TestSlotAlphabet(t *testing.T) {
	assert.Equal(t, Letters, Slot{Kind: Letter}.Alphabet())
	assert.Equal(t, Digits, Slot{Kind: Digit}.Alphabet())
	assert.Equal(t, RareLetters, Slot{Kind: Rare}.Alphabet())
	assert.Equal(t, "_", Slot{Kind: Literal, Char: '_'}.Alphabet())
}

func TestCatalog(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"LDDD", "LLDD", "DDDD", "L_DD", "L.LD", "RZRD"}, c.Keys())
	rare, ok := c.Lookup("RZRD")
	require.True(t, ok)
	assert.Equal(t, "RDRD", rare.Pattern())
	assert.Equal(t, 5.0, rare.BaseWeight)
	_, ok = c.Lookup("missing")
	assert.False(t, ok)

	_, err := NewCatalog(MustParse("a", "L", 1), MustParse("a", "D", 1))
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	_, err = NewCatalog()
	assert.ErrorIs(t, err, ErrInvalidTemplate)
}
