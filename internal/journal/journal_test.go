package journal

import (
	"context"
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

func TestJournal(t *testing.T) {
	ctx := context.Background()
	p := path.Join(t.TempDir(), "nested", "lines.txt")

	lines, err := ReadLines(ctx, afs.New(), p)
	require.NoError(t, err)
	assert.Empty(t, lines)

	j, err := Open(p)
	require.NoError(t, err)
	require.NoError(t, j.Append("a1b2"))
	require.NoError(t, j.Append("c3d4"))
	require.NoError(t, j.Close())
	assert.Error(t, j.Append("late"))

	reopened, err := Open(p)
	require.NoError(t, err)
	require.NoError(t, reopened.Append("e5f6"))
	require.NoError(t, reopened.Close())
	lines, err = ReadLines(ctx, afs.New(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1b2", "c3d4", "e5f6"}, lines)
}

func TestReadLines_PartialTail(t *testing.T) {
	p := path.Join(t.TempDir(), "partial.txt")
	require.NoError(t, os.WriteFile(p, []byte("a1b2\n\n  c3d4 \nx9"), 0o644))
	lines, err := ReadLines(context.Background(), afs.New(), p)
	require.NoError(t, err)
	assert.Equal(t, []string{"a1b2", "c3d4"}, lines)
}

func TestSplitLines(t *testing.T) {
	assert.Nil(t, SplitLines([]byte("no newline")))
	assert.Nil(t, SplitLines(nil))
	assert.Equal(t, []string{"a"}, SplitLines([]byte("a\n")))
}
