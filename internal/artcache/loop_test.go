package artcache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/whatsnowplaying/artcache/internal/datastore"
)

// stopWithin fails the test if Stop does not return before the deadline.
func stopWithin(t *testing.T, cache *Cache, deadline time.Duration) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		cache.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(deadline):
		t.Fatal("Stop did not return in time")
	}
}

func verifyNoLeaks(t *testing.T) {
	t.Helper()
	// The go-cache janitor is reclaimed by a finalizer, not by Stop(),
	// and the catalog connection pool outlives the loop until test
	// cleanup closes it.
	goleak.VerifyNone(t,
		goleak.IgnoreAnyFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
		goleak.IgnoreAnyFunction("database/sql.(*DB).connectionOpener"))
}

func TestSentinelShutdown(t *testing.T) {
	defer verifyNoLeaks(t)

	cache, index := newTestCache(t)

	// A sentinel left behind by a crashed run is cleared before polling starts.
	require.NoError(t, index.UpsertPending(SentinelURL, SentinelURL, SentinelURL))

	cache.Start(context.Background())
	time.Sleep(3 * cache.settings.Cache.PollInterval)

	_, err := index.FindByURL(SentinelURL)
	assert.ErrorIs(t, err, datastore.ErrNotFound, "stale sentinel must be cleared at loop start")

	cache.Stop()

	_, err = index.FindByURL(SentinelURL)
	assert.ErrorIs(t, err, datastore.ErrNotFound, "sentinel must be gone after shutdown")
}

func TestStopIsIdempotent(t *testing.T) {
	defer verifyNoLeaks(t)

	cache, _ := newTestCache(t)
	cache.Start(context.Background())

	cache.Stop()
	cache.Stop()
}

func TestNoDispatchAfterStop(t *testing.T) {
	defer verifyNoLeaks(t)

	cache, index := newTestCache(t)
	activateMock(t, cache)

	const url = "http://images.example.com/late.jpg"
	httpmock.RegisterResponder("GET", url,
		httpmock.NewBytesResponder(200, testPNG(t)))

	cache.Start(context.Background())
	cache.Stop()

	// Work queued after shutdown sits untouched.
	require.NoError(t, index.UpsertPending("Test Artist", url, datastore.ImageTypeFanart))
	time.Sleep(3 * cache.settings.Cache.PollInterval)

	entry, err := index.FindByURL(url)
	require.NoError(t, err)
	assert.False(t, entry.Resolved())
	assert.Zero(t, httpmock.GetTotalCallCount())
}

func TestLoopDispatchesPendingWork(t *testing.T) {
	defer verifyNoLeaks(t)

	cache, index := newTestCache(t)
	activateMock(t, cache)

	const url = "http://images.example.com/loop.jpg"
	httpmock.RegisterResponder("GET", url,
		httpmock.NewBytesResponder(200, testPNG(t)))

	require.NoError(t, index.UpsertPending("Test Artist", url, datastore.ImageTypeThumbnail))

	cache.Start(context.Background())
	defer cache.Stop()

	require.Eventually(t, func() bool {
		entry, err := index.FindByURL(url)
		return err == nil && entry.Resolved()
	}, 5*time.Second, 20*time.Millisecond, "control loop should pick up and resolve pending work")

	data, ok := cache.RandomImageFor("Test Artist", datastore.ImageTypeThumbnail)
	assert.True(t, ok)
	assert.NotEmpty(t, data)
}

func TestStopWithFullIdentityBacklog(t *testing.T) {
	defer verifyNoLeaks(t)

	cache, index := newTestCache(t)
	cache.settings.Cache.BatchSize = 3
	activateMock(t, cache)

	// Identity-type rows answering 404 stay pending indefinitely and fill
	// every batch, so shutdown must not depend on the sentinel surfacing
	// in one.
	for i := range 3 {
		url := fmt.Sprintf("http://images.example.com/thumb/%d.jpg", i)
		httpmock.RegisterResponder("GET", url,
			httpmock.NewStringResponder(404, "not found"))
		require.NoError(t, index.UpsertPending("Test Artist", url, datastore.ImageTypeThumbnail))
	}

	cache.Start(context.Background())
	time.Sleep(3 * cache.settings.Cache.PollInterval)

	stopWithin(t, cache, 5*time.Second)

	_, err := index.FindByURL(SentinelURL)
	assert.ErrorIs(t, err, datastore.ErrNotFound)

	// The 404 rows stay pending for a later run.
	batch, err := index.NextPendingBatch(10)
	require.NoError(t, err)
	assert.Len(t, batch, 3)
}

func TestCatalogRemovedStopsLoop(t *testing.T) {
	defer verifyNoLeaks(t)

	cache, _ := newTestCache(t)
	cache.Start(context.Background())

	dir, err := cache.settings.DefaultCacheDir()
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, datastore.CatalogFileName)))

	// With the catalog gone the sentinel row cannot be written, so the
	// loop has to notice the missing file on its own.
	stopWithin(t, cache, 5*time.Second)
}

func TestContextCancellationStopsLoop(t *testing.T) {
	defer verifyNoLeaks(t)

	cache, _ := newTestCache(t)

	ctx, cancel := context.WithCancel(context.Background())
	cache.Start(ctx)
	cancel()

	// Stop waits for the loop to drain even when the context already
	// ended it.
	cache.Stop()
}
