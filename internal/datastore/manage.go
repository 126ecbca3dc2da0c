package datastore

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/whatsnowplaying/artcache/internal/errors"
)

// slowQueryThreshold defines the duration after which a query is considered slow.
const slowQueryThreshold = 1 * time.Second

// performAutoMigration automates database migrations with error handling.
func performAutoMigration(db *gorm.DB, log *slog.Logger) error {
	migrationStart := time.Now()

	if err := db.AutoMigrate(&ArtworkEntry{}); err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto_migrate").
			Context("table", ArtworkEntry{}.TableName()).
			Build()
	}

	log.Debug("Database migration completed",
		"table", ArtworkEntry{}.TableName(),
		"duration", time.Since(migrationStart))
	return nil
}

// createGormLogger bridges gorm's logger interface onto the service slog logger.
func createGormLogger(log *slog.Logger) gormlogger.Interface {
	return &slogGormLogger{log: log, level: gormlogger.Warn}
}

type slogGormLogger struct {
	log   *slog.Logger
	level gormlogger.LogLevel
}

func (l *slogGormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *slogGormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.log.InfoContext(ctx, "gorm: "+msg, "args", args)
	}
}

func (l *slogGormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.log.WarnContext(ctx, "gorm: "+msg, "args", args)
	}
}

func (l *slogGormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.log.ErrorContext(ctx, "gorm: "+msg, "args", args)
	}
}

func (l *slogGormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.log.ErrorContext(ctx, "gorm query failed",
			"error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case elapsed > slowQueryThreshold:
		sql, rows := fc()
		l.log.WarnContext(ctx, "gorm slow query",
			"sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
