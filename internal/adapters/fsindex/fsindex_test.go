package fsindex_test

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cratery/cratery/internal/adapters/fsindex"
	"github.com/cratery/cratery/internal/domain/indexentry"
)

func TestShardPath(t *testing.T) {
	r := fsindex.New(t.TempDir())

	tests := map[string]string{
		"a":       filepath.Join("1", "a"),
		"ab":      filepath.Join("2", "ab"),
		"abc":     filepath.Join("3", "a", "abc"),
		"widgets": filepath.Join("wi", "dg", "widgets"),
		"Widgets": filepath.Join("wi", "dg", "widgets"),
	}

	for name, want := range tests {
		assert.Equal(t, want, r.ShardPath(name))
	}
}

func TestAppendThenRead(t *testing.T) {
	ctx := context.Background()
	r := fsindex.New(t.TempDir())

	e1 := indexentry.Entry{Name: "widgets", Vers: "0.1.0", Cksum: "deadbeef"}
	e2 := indexentry.Entry{Name: "widgets", Vers: "0.2.0", Cksum: "cafebabe"}

	require.NoError(t, r.Append(ctx, "widgets", e1))
	require.NoError(t, r.Append(ctx, "widgets", e2))

	entries, err := r.Read(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "0.1.0", entries[0].Vers)
	assert.Equal(t, "0.2.0", entries[1].Vers)
}

func TestReadMissingFileReturnsEmpty(t *testing.T) {
	r := fsindex.New(t.TempDir())

	entries, err := r.Read(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRewriteFlipsYankedFlag(t *testing.T) {
	ctx := context.Background()
	r := fsindex.New(t.TempDir())

	e := indexentry.Entry{Name: "widgets", Vers: "0.1.0", Cksum: "deadbeef"}
	require.NoError(t, r.Append(ctx, "widgets", e))

	e.Yanked = true
	require.NoError(t, r.Rewrite(ctx, "widgets", []indexentry.Entry{e}))

	entries, err := r.Read(ctx, "widgets")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Yanked)
}

func TestConcurrentAppendsAreSerialized(t *testing.T) {
	ctx := context.Background()
	r := fsindex.New(t.TempDir())

	const n = 50

	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			err := r.Append(ctx, "widgets", indexentry.Entry{Name: "widgets", Vers: "0.1." + strconv.Itoa(i)})
			assert.NoError(t, err)
		}(i)
	}

	wg.Wait()

	entries, err := r.Read(ctx, "widgets")
	require.NoError(t, err)
	assert.Len(t, entries, n)
}

func TestWriteIsAtomicNoPartialFileLeftBehind(t *testing.T) {
	dir := t.TempDir()
	r := fsindex.New(dir)

	require.NoError(t, r.Append(context.Background(), "widgets", indexentry.Entry{Name: "widgets", Vers: "0.1.0"}))

	entries, err := os.ReadDir(filepath.Join(dir, "wi", "dg"))
	require.NoError(t, err)

	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), ".tmp-index-")
	}
}
