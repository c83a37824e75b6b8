package progress

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgress_Update(t *testing.T) {
	var seen []Progress
	ctx, tr := WithNewTracker(context.Background(), "run1", "/tmp/state", func(p Progress) {
		seen = append(seen, p)
	})

	UpdateCtx(ctx, Delta{Probed: 1, Available: 1})
	UpdateCtx(ctx, Delta{Probed: 1, Taken: 1})
	UpdateCtx(ctx, Delta{Transient: 1})
	UpdateCtx(ctx, Delta{Generated: 5, Batches: 1})

	snapshot, ok := GetSnapshot(ctx)
	assert.True(t, ok)
	assert.Equal(t, 2, snapshot.Probed)
	assert.Equal(t, 1, snapshot.Available)
	assert.Equal(t, 1, snapshot.Taken)
	assert.Equal(t, 1, snapshot.Transient)
	assert.Equal(t, 5, snapshot.Generated)
	assert.Equal(t, 1, snapshot.BatchesCompleted)
	assert.Equal(t, "run1", snapshot.RunID)
	assert.Len(t, seen, 4)
	assert.Equal(t, 1, seen[0].Probed)
	assert.Same(t, tr, mustTracker(t, ctx))
}

func TestProgress_Concurrent(t *testing.T) {
	tr := New("run", "")
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.Update(Delta{Generated: 1})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1000, tr.Snapshot().Generated)
}

func TestProgress_NilSafe(t *testing.T) {
	var tr *Progress
	tr.Update(Delta{Probed: 1})
	tr.OnChange(nil)
	assert.Equal(t, 0, tr.Snapshot().Probed)
	UpdateCtx(context.Background(), Delta{Probed: 1})
	_, ok := GetSnapshot(context.Background())
	assert.False(t, ok)
}

func mustTracker(t *testing.T, ctx context.Context) *Progress {
	t.Helper()
	tr, ok := FromContext(ctx)
	assert.True(t, ok)
	return tr
}
