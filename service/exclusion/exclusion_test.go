package exclusion

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_Claim(t *testing.T) {
	set := New(nil)
	var committed []string
	commit := func(id string) func() error {
		return func() error {
			committed = append(committed, id)
			return nil
		}
	}

	ok, err := set.Claim("a1b2", commit("a1b2"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = set.Claim("a1b2", commit("a1b2"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []string{"a1b2"}, committed)

	require.NoError(t, set.AddAll([]string{"c3d4", "e5f6"}))
	ok, err = set.Claim("c3d4", nil)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, set.Len())
}

func TestSet_ClaimCommitError(t *testing.T) {
	set := New(nil)
	boom := errors.New("disk full")
	ok, err := set.Claim("a1b2", func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, ok)
	has, err := set.Has("a1b2")
	require.NoError(t, err)
	assert.True(t, has, "a failed commit leaves the identifier spent")
}

func TestSet_ConcurrentClaims(t *testing.T) {
	set := New(nil)
	const workers = 8
	const ids = 500
	var mu sync.Mutex
	winners := map[string]int{}
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < ids; i++ {
				id := fmt.Sprintf("id%03d", i)
				_, _ = set.Claim(id, func() error {
					mu.Lock()
					winners[id]++
					mu.Unlock()
					return nil
				})
			}
		}()
	}
	wg.Wait()
	require.Len(t, winners, ids)
	for id, n := range winners {
		assert.Equal(t, 1, n, id)
	}
}

func TestSet_Seed(t *testing.T) {
	set := New(nil)
	ledger := SourceFunc(func(ctx context.Context) ([]string, error) {
		return []string{"a1", "b2"}, nil
	})
	batches := SourceFunc(func(ctx context.Context) ([]string, error) {
		return []string{"b2", "c3"}, nil
	})
	require.NoError(t, set.Seed(context.Background(), ledger, batches))
	assert.Equal(t, 3, set.Len())

	failing := SourceFunc(func(ctx context.Context) ([]string, error) {
		return nil, errors.New("unreadable")
	})
	assert.Error(t, set.Seed(context.Background(), failing))
}
