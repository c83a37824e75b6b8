package ledger

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
)

func TestLedger_RecordAndReload(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	fs := afs.New()

	l := New(fs, root)
	require.NoError(t, l.Open(ctx))
	require.NoError(t, l.RecordChecked("a1b2", true))
	require.NoError(t, l.RecordChecked("c3d4", false))
	require.NoError(t, l.AddPending(ctx, "e5f6"))
	require.NoError(t, l.AddPending(ctx, "e5f6"))
	require.NoError(t, l.AddPending(ctx, "g7h8"))
	require.NoError(t, l.RecordResolved("x9y9", "status 429"))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(filepath.Join(root, AvailableFile))
	require.NoError(t, err)
	assert.Equal(t, "a1b2\n", string(data))
	data, err = os.ReadFile(filepath.Join(root, ErrorsFile))
	require.NoError(t, err)
	assert.Equal(t, "x9y9  # status 429\n", string(data))

	reloaded := New(fs, root)
	require.NoError(t, reloaded.Open(ctx))
	defer reloaded.Close()
	assert.True(t, reloaded.IsChecked("a1b2"))
	assert.True(t, reloaded.IsChecked("c3d4"))
	assert.False(t, reloaded.IsChecked("e5f6"))
	assert.Equal(t, 2, reloaded.CheckedCount())
	assert.Equal(t, []string{"e5f6", "g7h8"}, reloaded.Pending())

	ids, err := reloaded.Identifiers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a1b2", "c3d4", "a1b2", "e5f6", "g7h8"}, ids)
}

func TestLedger_Pending(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := New(afs.New(), root)
	require.NoError(t, l.Open(ctx))
	defer l.Close()

	require.NoError(t, l.AddPending(ctx, "a1"))
	require.NoError(t, l.AddPending(ctx, "b2"))
	require.NoError(t, l.RemovePending(ctx, "a1"))
	require.NoError(t, l.RemovePending(ctx, "zz"))
	assert.Equal(t, []string{"b2"}, l.Pending())

	data, err := os.ReadFile(filepath.Join(root, PendingFile))
	require.NoError(t, err)
	assert.Equal(t, "b2\n", string(data))

	require.NoError(t, l.ReplacePending(ctx, nil))
	assert.Empty(t, l.Pending())
	data, err = os.ReadFile(filepath.Join(root, PendingFile))
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestLedger_MarkLastChecked(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	l := New(afs.New(), root)
	require.NoError(t, l.MarkLastChecked(ctx, Position{Batch: 3, Index: 17}, "a_b1"))
	data, err := os.ReadFile(filepath.Join(root, LastCheckedFile))
	require.NoError(t, err)
	assert.Contains(t, string(data), "current_batch: 3\n")
	assert.Contains(t, string(data), "current_index: 17\n")
	assert.Contains(t, string(data), "current_username: a_b1\n")
}
