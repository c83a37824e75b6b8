package generator

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/handlegen/model/template"
)

func TestValid(t *testing.T) {
	testCases := []struct {
		id    string
		valid bool
	}{
		{"a1b2", true},
		{"a_12", true},
		{"a.b1", true},
		{"_a_1", true},
		{"", false},
		{".ab1", false},
		{"ab1.", false},
		{"a..1", false},
		{"Ab12", false},
		{"a-12", false},
		{"a 12", false},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.valid, Valid(tc.id), tc.id)
	}
}

func TestRender(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	tpl := template.MustParse("RZRD", "RDRD", 5)
	for i := 0; i < 200; i++ {
		id := Render(tpl, rnd)
		require.Len(t, id, 4)
		assert.True(t, strings.ContainsRune(template.RareLetters, rune(id[0])), id)
		assert.True(t, strings.ContainsRune(template.Digits, rune(id[1])), id)
		assert.True(t, strings.ContainsRune(template.RareLetters, rune(id[2])), id)
		assert.True(t, strings.ContainsRune(template.Digits, rune(id[3])), id)
	}
}

func TestGenerate_AlwaysValid(t *testing.T) {
	rnd := rand.New(rand.NewPCG(7, 11))
	g := New(template.Default())
	for i := 0; i < 5000; i++ {
		tpl := g.Catalog().At(rnd.IntN(g.Catalog().Len()))
		id, key, err := g.Generate(tpl, rnd)
		require.NoError(t, err)
		assert.True(t, Valid(id), id)
		assert.Equal(t, tpl.Key, key)
	}
	id, key, err := g.Generate(nil, rnd)
	require.NoError(t, err)
	assert.True(t, Valid(id))
	_, ok := g.Catalog().Lookup(key)
	assert.True(t, ok)
}

func TestGenerate_Fallback(t *testing.T) {
	rnd := rand.New(rand.NewPCG(3, 4))
	broken := template.MustParse("DOT", ".LD", 10)
	catalog, err := template.NewCatalog(broken, template.MustParse("LLDD", "LLDD", 1))
	require.NoError(t, err)

	id, key, err := New(catalog).Generate(broken, rnd)
	require.NoError(t, err)
	assert.Equal(t, "LLDD", key)
	assert.True(t, Valid(id))
}

func TestGenerate_Exhausted(t *testing.T) {
	rnd := rand.New(rand.NewPCG(5, 6))
	catalog, err := template.NewCatalog(template.MustParse("DOTS", "L..D", 1))
	require.NoError(t, err)

	_, _, err = New(catalog).Generate(nil, rnd)
	assert.ErrorIs(t, err, ErrGeneration)
}
