package datastore

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whatsnowplaying/artcache/internal/conf"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	settings := &conf.Settings{}
	settings.Cache.Dir = t.TempDir()
	settings.Cache.SizeLimit = 1 << 20
	settings.Cache.MaxWorkers = 1
	settings.Cache.BatchSize = 10
	settings.Cache.PollInterval = time.Second
	settings.Cache.FetchTimeout = time.Second

	store, err := New(settings)
	require.NoError(t, err)
	require.NoError(t, store.Open())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertPendingIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	const url = "http://example.com/artist/fanart1.jpg"
	require.NoError(t, store.UpsertPending("Test Artist", url, ImageTypeFanart))
	require.NoError(t, store.UpsertPending("Test Artist", url, ImageTypeFanart))

	var count int64
	require.NoError(t, store.DB.Model(&ArtworkEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "duplicate URL insert must be suppressed")

	entry, err := store.FindByURL(url)
	require.NoError(t, err)
	assert.Equal(t, "Test Artist", entry.Artist)
	assert.False(t, entry.Resolved())
	assert.Zero(t, entry.Strikes)
}

func TestResolveResetsStrikes(t *testing.T) {
	store := newTestStore(t)

	const url = "http://example.com/artist/thumb.jpg"
	require.NoError(t, store.UpsertPending("Test Artist", url, ImageTypeThumbnail))
	require.NoError(t, store.Resolve("Test Artist", url, ImageTypeThumbnail, "key-1"))

	require.NoError(t, store.Strike("key-1"))
	require.NoError(t, store.Strike("key-1"))

	// Re-resolving the same URL flips strikes back to zero
	require.NoError(t, store.Resolve("Test Artist", url, ImageTypeThumbnail, "key-2"))

	entry, err := store.FindByURL(url)
	require.NoError(t, err)
	require.True(t, entry.Resolved())
	assert.Equal(t, "key-2", *entry.CacheKey)
	assert.Zero(t, entry.Strikes)

	var count int64
	require.NoError(t, store.DB.Model(&ArtworkEntry{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "resolve must replace, not add")
}

func TestStrikeMonotonicity(t *testing.T) {
	store := newTestStore(t)

	const url = "http://example.com/artist/banner.jpg"
	require.NoError(t, store.Resolve("Test Artist", url, ImageTypeBanner, "key-b"))

	for i := 1; i <= MaxStrikes; i++ {
		require.NoError(t, store.Strike("key-b"))

		entry, err := store.FindByCacheKey("key-b")
		require.NoError(t, err, "entry must survive strike %d", i)
		assert.Equal(t, i, entry.Strikes)
	}

	// The strike past the threshold deletes the entry outright
	require.NoError(t, store.Strike("key-b"))

	_, err := store.FindByURL(url)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStrikeUnknownKeyIsNoop(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Strike("no-such-key"))
}

func TestUnstrike(t *testing.T) {
	store := newTestStore(t)

	const url = "http://example.com/artist/logo.png"
	require.NoError(t, store.Resolve("Test Artist", url, ImageTypeLogo, "key-l"))

	require.NoError(t, store.Strike("key-l"))
	require.NoError(t, store.Strike("key-l"))
	require.NoError(t, store.Strike("key-l"))

	require.NoError(t, store.Unstrike("key-l"))

	entry, err := store.FindByCacheKey("key-l")
	require.NoError(t, err)
	assert.Zero(t, entry.Strikes)

	// No-op on already-zero strikes and on unknown keys
	assert.NoError(t, store.Unstrike("key-l"))
	assert.NoError(t, store.Unstrike("no-such-key"))
}

func TestNextPendingBatchPrioritizesIdentityTypes(t *testing.T) {
	store := newTestStore(t)

	for i := range 5 {
		url := fmt.Sprintf("http://example.com/fanart/%d.jpg", i)
		require.NoError(t, store.UpsertPending("Test Artist", url, ImageTypeFanart))
	}
	require.NoError(t, store.UpsertPending("Test Artist", "http://example.com/thumb.jpg", ImageTypeThumbnail))
	require.NoError(t, store.UpsertPending("Test Artist", "http://example.com/logo.png", ImageTypeLogo))

	// A resolved row must never show up in a pending batch
	require.NoError(t, store.Resolve("Test Artist", "http://example.com/banner.jpg", ImageTypeBanner, "key-r"))

	batch, err := store.NextPendingBatch(10)
	require.NoError(t, err)
	require.Len(t, batch, 7)

	assert.True(t, IdentityImageType(batch[0].ImageType))
	assert.True(t, IdentityImageType(batch[1].ImageType))
	for _, entry := range batch {
		assert.False(t, entry.Resolved())
	}
}

func TestNextPendingBatchLimit(t *testing.T) {
	store := newTestStore(t)

	for i := range 15 {
		url := fmt.Sprintf("http://example.com/fanart/%d.jpg", i)
		require.NoError(t, store.UpsertPending("Test Artist", url, ImageTypeFanart))
	}

	batch, err := store.NextPendingBatch(10)
	require.NoError(t, err)
	assert.Len(t, batch, 10)
}

func TestRandomResolved(t *testing.T) {
	store := newTestStore(t)

	_, err := store.RandomResolved("Test Artist", ImageTypeFanart)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UpsertPending("Test Artist", "http://example.com/pending.jpg", ImageTypeFanart))
	_, err = store.RandomResolved("Test Artist", ImageTypeFanart)
	assert.ErrorIs(t, err, ErrNotFound, "pending rows are not eligible")

	keys := map[string]bool{"key-0": true, "key-1": true, "key-2": true}
	for key := range keys {
		url := fmt.Sprintf("http://example.com/%s.jpg", key)
		require.NoError(t, store.Resolve("Test Artist", url, ImageTypeFanart, key))
	}

	entry, err := store.RandomResolved("Test Artist", ImageTypeFanart)
	require.NoError(t, err)
	require.True(t, entry.Resolved())
	assert.True(t, keys[*entry.CacheKey])

	// Wrong artist or type finds nothing
	_, err = store.RandomResolved("Other Artist", ImageTypeFanart)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.RandomResolved("Test Artist", ImageTypeLogo)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOperationsBeforeCatalogExists(t *testing.T) {
	settings := &conf.Settings{}
	settings.Cache.Dir = t.TempDir()

	store, err := New(settings)
	require.NoError(t, err)

	// Never opened: reads degrade to not-found, mutations to no-ops
	_, err = store.FindByURL("http://example.com/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindByCacheKey("key")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.NextPendingBatch(10)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.RandomResolved("a", ImageTypeFanart)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, store.UpsertPending("a", "http://example.com/a.jpg", ImageTypeFanart))
	assert.NoError(t, store.Resolve("a", "http://example.com/a.jpg", ImageTypeFanart, "key"))
	assert.NoError(t, store.DeleteByURL("http://example.com/a.jpg"))
	assert.NoError(t, store.Strike("key"))
	assert.NoError(t, store.Unstrike("key"))
	assert.NoError(t, store.Clear())
}

func TestClear(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.UpsertPending("Test Artist", "http://example.com/a.jpg", ImageTypeFanart))
	require.NoError(t, store.Clear())

	_, err := store.FindByURL("http://example.com/a.jpg")
	assert.ErrorIs(t, err, ErrNotFound)

	// The catalog is usable again after a clear
	require.NoError(t, store.UpsertPending("Test Artist", "http://example.com/b.jpg", ImageTypeFanart))
	entry, err := store.FindByURL("http://example.com/b.jpg")
	require.NoError(t, err)
	assert.Equal(t, "Test Artist", entry.Artist)
}

func TestCatalogPathUnderCacheDir(t *testing.T) {
	dir := t.TempDir()
	settings := &conf.Settings{}
	settings.Cache.Dir = dir

	store, err := New(settings)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, CatalogFileName), store.dbPath)
}
