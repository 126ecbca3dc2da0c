// interfaces.go: The database interface for the artwork index
package datastore

import (
	"log/slog"
	"os"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/whatsnowplaying/artcache/internal/errors"
)

// ErrNotFound is returned by lookups when no matching entry exists, and by
// every read when the catalog file has not been created yet.
var ErrNotFound = errors.NewStd("artwork entry not found")

// Interface defines the operations the artwork index supports. Every
// operation is safe to call before the underlying catalog exists: reads
// return ErrNotFound and mutations are no-ops, so first-run races never
// surface as errors.
type Interface interface {
	Open() error
	Close() error
	Clear() error
	FindByURL(url string) (*ArtworkEntry, error)
	FindByCacheKey(cacheKey string) (*ArtworkEntry, error)
	UpsertPending(artist, url, imageType string) error
	Resolve(artist, url, imageType, cacheKey string) error
	DeleteByURL(url string) error
	Strike(cacheKey string) error
	Unstrike(cacheKey string) error
	NextPendingBatch(limit int) ([]ArtworkEntry, error)
	RandomResolved(artist, imageType string) (*ArtworkEntry, error)
}

// DataStore implements the Interface on top of a gorm database handle.
type DataStore struct {
	DB     *gorm.DB
	dbPath string
	log    *slog.Logger
}

// catalogReady reports whether the catalog can be queried. The database
// file can legitimately be missing (first run, or mid re-initialization);
// callers treat that as "nothing known" rather than a failure.
func (ds *DataStore) catalogReady() bool {
	if ds.DB == nil || ds.dbPath == "" {
		return false
	}
	if _, err := os.Stat(ds.dbPath); err != nil {
		return false
	}
	return true
}

// FindByURL looks up the entry for a source URL.
func (ds *DataStore) FindByURL(url string) (*ArtworkEntry, error) {
	if !ds.catalogReady() {
		return nil, ErrNotFound
	}

	var entry ArtworkEntry
	if err := ds.DB.Where("url = ?", url).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, dbError(err, "find_by_url")
	}
	return &entry, nil
}

// FindByCacheKey looks up the entry holding a blob store key.
func (ds *DataStore) FindByCacheKey(cacheKey string) (*ArtworkEntry, error) {
	if !ds.catalogReady() {
		return nil, ErrNotFound
	}

	var entry ArtworkEntry
	if err := ds.DB.Where("cache_key = ?", cacheKey).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, dbError(err, "find_by_cache_key")
	}
	return &entry, nil
}

// UpsertPending inserts a pending entry for a discovered URL. Re-inserting
// a known URL is a no-op, never an error; URLs are globally unique and are
// not reassigned across artists.
func (ds *DataStore) UpsertPending(artist, url, imageType string) error {
	if !ds.catalogReady() {
		return nil
	}

	entry := ArtworkEntry{
		URL:       url,
		Artist:    artist,
		ImageType: imageType,
	}
	err := ds.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&entry).Error
	if err != nil {
		return dbError(err, "upsert_pending")
	}
	return nil
}

// Resolve records a completed download: the row is inserted or replaced
// with the blob store key set and the strike count reset to zero.
func (ds *DataStore) Resolve(artist, url, imageType, cacheKey string) error {
	if !ds.catalogReady() {
		return nil
	}

	entry := ArtworkEntry{
		URL:       url,
		CacheKey:  &cacheKey,
		Artist:    artist,
		ImageType: imageType,
		Strikes:   0,
	}
	err := ds.DB.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error
	if err != nil {
		return dbError(err, "resolve")
	}
	return nil
}

// DeleteByURL removes the entry for a source URL, if present.
func (ds *DataStore) DeleteByURL(url string) error {
	if !ds.catalogReady() {
		return nil
	}

	if err := ds.DB.Where("url = ?", url).Delete(&ArtworkEntry{}).Error; err != nil {
		return dbError(err, "delete_by_url")
	}
	return nil
}

// Strike records a blob read failure against an entry. An entry that has
// already absorbed MaxStrikes failures is deleted outright; otherwise the
// count is incremented. No-op if the entry is already gone.
func (ds *DataStore) Strike(cacheKey string) error {
	entry, err := ds.FindByCacheKey(cacheKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if entry.Strikes >= MaxStrikes {
		ds.log.Debug("Strike threshold exceeded, forgetting entry",
			"url", entry.URL,
			"artist", entry.Artist,
			"image_type", entry.ImageType)
		return ds.DeleteByURL(entry.URL)
	}

	ds.log.Debug("Recording strike",
		"cache_key", cacheKey,
		"artist", entry.Artist,
		"strikes", entry.Strikes+1)

	err = ds.DB.Model(&ArtworkEntry{}).
		Where("cache_key = ?", cacheKey).
		UpdateColumn("strikes", entry.Strikes+1).Error
	if err != nil {
		return dbError(err, "strike")
	}
	return nil
}

// Unstrike resets the strike count after a successful blob read. No-op if
// the count is already zero or the entry is gone.
func (ds *DataStore) Unstrike(cacheKey string) error {
	entry, err := ds.FindByCacheKey(cacheKey)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}

	if entry.Strikes == 0 {
		return nil
	}

	err = ds.DB.Model(&ArtworkEntry{}).
		Where("cache_key = ?", cacheKey).
		UpdateColumn("strikes", 0).Error
	if err != nil {
		return dbError(err, "unstrike")
	}
	return nil
}

// NextPendingBatch returns up to limit pending entries, most recently
// touched first. Artist identity image types (thumbnail, banner, logo) are
// serviced before generic fanart; remaining capacity is filled with other
// pending rows. A full identity backlog can crowd everything else out of a
// batch, so callers needing a specific row must look it up directly.
func (ds *DataStore) NextPendingBatch(limit int) ([]ArtworkEntry, error) {
	if !ds.catalogReady() {
		return nil, ErrNotFound
	}

	identityTypes := []string{ImageTypeThumbnail, ImageTypeBanner, ImageTypeLogo}

	var batch []ArtworkEntry
	err := ds.DB.
		Where("cache_key IS NULL AND image_type IN ?", identityTypes).
		Order("timestamp DESC").
		Limit(limit).
		Find(&batch).Error
	if err != nil {
		return nil, dbError(err, "next_pending_batch")
	}

	if remaining := limit - len(batch); remaining > 0 {
		var rest []ArtworkEntry
		err = ds.DB.
			Where("cache_key IS NULL AND image_type NOT IN ?", identityTypes).
			Order("timestamp DESC").
			Limit(remaining).
			Find(&rest).Error
		if err != nil {
			return nil, dbError(err, "next_pending_batch")
		}
		batch = append(batch, rest...)
	}

	return batch, nil
}

// RandomResolved returns a resolved entry for the artist and image type,
// chosen uniformly at random among matches.
func (ds *DataStore) RandomResolved(artist, imageType string) (*ArtworkEntry, error) {
	if !ds.catalogReady() {
		return nil, ErrNotFound
	}

	var entry ArtworkEntry
	err := ds.DB.
		Where("artist = ? AND image_type = ? AND cache_key IS NOT NULL", artist, imageType).
		Order("RANDOM()").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, dbError(err, "random_resolved")
	}
	return &entry, nil
}

// dbError wraps a gorm error with datastore context.
func dbError(err error, operation string) error {
	return errors.New(err).
		Component("datastore").
		Category(errors.CategoryDatabase).
		Context("operation", operation).
		Build()
}
