// model.go this code defines the data model for the artwork index
package datastore

import "time"

// Image type vocabulary used by the artist extras providers.
const (
	ImageTypeThumbnail = "artistthumb"
	ImageTypeBanner    = "artistbanner"
	ImageTypeLogo      = "artistlogo"
	ImageTypeFanart    = "artistfanart"
)

// MaxStrikes is the number of consecutive blob read failures an entry
// survives. The strike that would push the count past this threshold
// deletes the entry instead.
const MaxStrikes = 3

// ArtworkEntry represents one known artwork source URL and its cache state.
// A nil CacheKey means the download has not completed yet (the entry is
// pending); a non-nil CacheKey is a weak reference into the blob store.
type ArtworkEntry struct {
	URL       string    `gorm:"column:url;primaryKey"`
	CacheKey  *string   `gorm:"column:cache_key;index:idx_artwork_cachekey"`
	Artist    string    `gorm:"not null;index:idx_artwork_artist_type"`
	ImageType string    `gorm:"not null;index:idx_artwork_artist_type"`
	Strikes   int       `gorm:"not null;default:0"`
	Timestamp time.Time `gorm:"autoUpdateTime;index:idx_artwork_timestamp"`
}

// TableName overrides the default gorm table name.
func (ArtworkEntry) TableName() string {
	return "artwork_entries"
}

// Resolved reports whether the entry has a completed download behind it.
func (e *ArtworkEntry) Resolved() bool {
	return e.CacheKey != nil && *e.CacheKey != ""
}

// IdentityImageType reports whether the image type is one of the artist
// identity categories, which are serviced before generic fanart.
func IdentityImageType(imageType string) bool {
	switch imageType {
	case ImageTypeThumbnail, ImageTypeBanner, ImageTypeLogo:
		return true
	}
	return false
}
