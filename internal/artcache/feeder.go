package artcache

import (
	"math/rand/v2"
	"strings"
)

// FillQueue enqueues candidate URLs discovered by an upstream provider for
// background download. A uniformly random subset of at most the per-type
// cap is selected, so repeated calls do not always bias toward the first
// results a provider returns. Duplicate URLs across calls are suppressed
// by the index's uniqueness invariant.
func (c *Cache) FillQueue(artist, imageType string, urls []string) {
	maxArt := c.capFor(imageType)
	if maxArt <= 0 || len(urls) == 0 {
		return
	}

	count := min(len(urls), maxArt)
	c.log.Debug("Queueing artwork candidates",
		"artist", artist,
		"image_type", imageType,
		"candidates", len(urls),
		"queued", count)

	for _, idx := range rand.Perm(len(urls))[:count] {
		if err := c.index.UpsertPending(artist, urls[idx], imageType); err != nil {
			c.log.Debug("Failed to queue artwork candidate",
				"url", urls[idx], "error", err)
		}
	}

	// New work invalidates any cached "no image available" answer.
	c.negative.Delete(negativeKey(artist, imageType))
}

// capFor returns the per-type download cap. Matching is by substring so
// provider-specific type names like "musicbrainz-logo" still map onto the
// right cap, with fanart as the catch-all.
func (c *Cache) capFor(imageType string) int {
	extras := c.settings.ArtistExtras
	switch {
	case strings.Contains(imageType, "logo"):
		return extras.Logos
	case strings.Contains(imageType, "banner"):
		return extras.Banners
	case strings.Contains(imageType, "thumb"):
		return extras.Thumbnails
	default:
		return extras.Fanart
	}
}
