package datastore

import (
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/whatsnowplaying/artcache/internal/conf"
	"github.com/whatsnowplaying/artcache/internal/errors"
	"github.com/whatsnowplaying/artcache/internal/logging"
)

// CatalogFileName is the name of the index database inside the cache directory.
const CatalogFileName = "artcache.db"

// SQLiteStore implements Interface for SQLite
type SQLiteStore struct {
	DataStore
	Settings *conf.Settings
}

// New creates an unopened SQLite-backed artwork index under the configured
// cache directory.
func New(settings *conf.Settings) (*SQLiteStore, error) {
	dir, err := settings.DefaultCacheDir()
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{Settings: settings}
	store.dbPath = filepath.Join(dir, CatalogFileName)
	store.log = logging.ForService("datastore")
	return store, nil
}

// Open sets up the SQLite database connection and migrates the schema.
// Failure to create the cache directory or the catalog file is fatal; it
// is the only startup condition the subsystem refuses to run without.
func (store *SQLiteStore) Open() error {
	if err := os.MkdirAll(filepath.Dir(store.dbPath), 0o750); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryFileIO).
			Context("operation", "create-cache-directory").
			Context("path", filepath.Dir(store.dbPath)).
			Build()
	}

	db, err := gorm.Open(sqlite.Open(store.dbPath), &gorm.Config{Logger: createGormLogger(store.log)})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "open-sqlite").
			Context("path", store.dbPath).
			Build()
	}

	store.DB = db
	return performAutoMigration(db, store.log)
}

// Close releases the underlying database connection.
func (store *SQLiteStore) Close() error {
	if store.DB == nil {
		return nil
	}

	sqlDB, err := store.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	return sqlDB.Close()
}

// Clear wipes every artwork entry. Used during forced re-initialization,
// together with clearing the blob store, so index and store never drift.
func (store *SQLiteStore) Clear() error {
	if !store.catalogReady() {
		return nil
	}

	if err := store.DB.Migrator().DropTable(&ArtworkEntry{}); err != nil {
		return dbError(err, "clear")
	}
	return performAutoMigration(store.DB, store.log)
}
