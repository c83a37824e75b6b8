package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/handlegen/model/template"
	"github.com/viant/handlegen/progress"
	"github.com/viant/handlegen/service/exclusion"
	"github.com/viant/handlegen/service/generator"
	"github.com/viant/handlegen/service/weight"
)

type fixture struct {
	root     string
	store    *Store
	set      *exclusion.Set
	producer *Producer
}

func newFixture(t *testing.T, catalog *template.Catalog, config Config) *fixture {
	t.Helper()
	root := t.TempDir()
	store := NewStore(afs.New(), root)
	set := exclusion.New(nil)
	producer := NewProducer(store, generator.New(catalog), weight.New(catalog), set,
		WithConfig(config), WithSeed(42))
	return &fixture{root: root, store: store, set: set, producer: producer}
}

func assertComplete(t *testing.T, f *fixture, n uint64, size int) []string {
	t.Helper()
	ctx := context.Background()
	lines, err := f.store.Lines(ctx, n)
	require.NoError(t, err)
	require.Len(t, lines, size)

	seen := map[string]bool{}
	for _, id := range lines {
		assert.True(t, generator.Valid(id), id)
		assert.False(t, seen[id], "duplicate %s", id)
		seen[id] = true
	}
	marker, err := f.store.HasMarker(ctx, n)
	require.NoError(t, err)
	assert.True(t, marker)

	provenance, err := f.store.Provenance(ctx, n)
	require.NoError(t, err)
	require.Len(t, provenance, size)
	for _, id := range lines {
		assert.Contains(t, provenance, id)
	}
	return lines
}

func TestProducer_SameBatchConcurrently(t *testing.T) {
	f := newFixture(t, template.Default(), Config{Size: 1000})
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.producer.Run(ctx, 1)
		}(i)
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	lines := assertComplete(t, f, 1, 1000)
	assert.Equal(t, 1000, f.set.Len())

	// A later run observes the marker and writes nothing.
	require.NoError(t, f.producer.Run(ctx, 1))
	after, err := f.store.Lines(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, lines, after)
}

func TestProducer_UniqueAcrossBatches(t *testing.T) {
	f := newFixture(t, template.Default(), Config{Size: 300})
	ctx := context.Background()
	var wg sync.WaitGroup
	for n := uint64(1); n <= 4; n++ {
		wg.Add(1)
		go func(n uint64) {
			defer wg.Done()
			assert.NoError(t, f.producer.Run(ctx, n))
		}(n)
	}
	wg.Wait()

	seen := map[string]bool{}
	for n := uint64(1); n <= 4; n++ {
		for _, id := range assertComplete(t, f, n, 300) {
			assert.False(t, seen[id], "duplicate %s across batches", id)
			seen[id] = true
		}
	}
	ids, err := f.store.ListIdentifiers(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 1200)
}

func TestProducer_CancelThenResume(t *testing.T) {
	f := newFixture(t, template.Default(), Config{Size: 200})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx, _ = progress.WithNewTracker(ctx, "run", f.root, func(p progress.Progress) {
		if p.Generated >= 50 {
			cancel()
		}
	})

	err := f.producer.Run(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)

	background := context.Background()
	marker, err := f.store.HasMarker(background, 1)
	require.NoError(t, err)
	assert.False(t, marker, "a stopped batch must not be marked complete")
	partial, err := f.store.Lines(background, 1)
	require.NoError(t, err)
	require.Len(t, partial, 50)
	provenance, err := f.store.Provenance(background, 1)
	require.NoError(t, err)
	assert.Len(t, provenance, 50)

	// Run never touches partial data; Resume completes it in place.
	require.NoError(t, f.producer.Run(background, 1))
	marker, err = f.store.HasMarker(background, 1)
	require.NoError(t, err)
	assert.False(t, marker)

	require.NoError(t, f.producer.Resume(background, 1))
	lines := assertComplete(t, f, 1, 200)
	assert.Equal(t, partial, lines[:50])
}

func TestProducer_Exhausted(t *testing.T) {
	catalog, err := template.NewCatalog(template.MustParse("DD", "DD", 1))
	require.NoError(t, err)
	f := newFixture(t, catalog, Config{Size: 150, MaxRejections: 5000})

	err = f.producer.Run(context.Background(), 1)
	assert.ErrorIs(t, err, ErrExhausted)
	assert.Equal(t, 100, f.set.Len())
	marker, err := f.store.HasMarker(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, marker)
}

func TestProducer_WriteFailure(t *testing.T) {
	f := newFixture(t, template.Default(), Config{Size: 10})
	// A directory where the data file belongs makes every append fail.
	require.NoError(t, os.MkdirAll(f.store.DataPath(1), 0o755))
	err := f.producer.Run(context.Background(), 1)
	assert.True(t, errors.Is(err, ErrProducer))
}

func TestManager_EnsureWindow(t *testing.T) {
	f := newFixture(t, template.Default(), Config{Size: 100})
	ctx := context.Background()

	// A stale partial batch from an earlier run.
	require.NoError(t, os.MkdirAll(f.store.Dir(), 0o755))
	require.NoError(t, os.WriteFile(f.store.DataPath(2), []byte("aaa1\nbbb2\n"), 0o644))
	require.NoError(t, os.WriteFile(f.store.ProvenancePath(2), []byte("aaa1 LLLD\n"), 0o644))
	require.NoError(t, f.set.AddAll([]string{"aaa1", "bbb2"}))

	manager := NewManager(f.producer, f.store, 3, 2, nil, nil)
	require.NoError(t, manager.EnsureWindow(ctx, 1))
	require.NoError(t, manager.EnsureWindow(ctx, 1))
	require.NoError(t, manager.Wait())
	// TryGo may have refused the third batch while two were running.
	require.NoError(t, manager.EnsureWindow(ctx, 1))
	require.NoError(t, manager.Wait())

	assertComplete(t, f, 1, 100)
	lines := assertComplete(t, f, 2, 100)
	assert.Equal(t, []string{"aaa1", "bbb2"}, lines[:2])
	assertComplete(t, f, 3, 100)

	provenance, err := f.store.Provenance(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "LLLD", provenance["aaa1"])
	assert.Equal(t, "", provenance["bbb2"])

	numbers, err := f.store.Numbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2, 3}, numbers)
}

func TestStore_Archive(t *testing.T) {
	f := newFixture(t, template.Default(), Config{Size: 20})
	ctx := context.Background()
	require.NoError(t, f.producer.Run(ctx, 1))
	require.NoError(t, f.store.Archive(ctx, 1))

	for _, name := range []string{"random_1.txt", "random_1.prov", "random_1.meta.json", "random_1.complete"} {
		_, err := os.Stat(filepath.Join(f.root, ProcessedDir, name))
		assert.NoError(t, err, name)
		_, err = os.Stat(filepath.Join(f.store.Dir(), name))
		assert.True(t, os.IsNotExist(err), name)
	}
	ids, err := f.store.ListIdentifiers(ctx)
	require.NoError(t, err)
	assert.Len(t, ids, 20)
}

func TestWatcher(t *testing.T) {
	dir := filepath.Join(t.TempDir(), BatchesDir)
	w := NewWatcher(dir, 2*time.Second, nil)
	w.Start()
	defer w.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "random_1.txt"), []byte("a1\n"), 0o644)
	}()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, w.Wait(ctx))

	w.Notify()
	require.NoError(t, w.Wait(ctx))

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	assert.ErrorIs(t, w.Wait(cancelled), context.Canceled)
}

func TestWatcher_Polling(t *testing.T) {
	w := NewWatcher(t.TempDir(), 20*time.Millisecond, nil)
	start := time.Now()
	require.NoError(t, w.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}
