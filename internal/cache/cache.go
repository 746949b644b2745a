// Package cache persists the last-known application document locally so the
// app can paint immediately at startup and survive a dead remote.
package cache

import (
	"errors"
	"fmt"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/lamplight-apps/chapterboard/internal/appdata"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// snapshotKey is the single row the cache ever writes; the store is a
// one-key blob by design.
const snapshotKey = "appdata"

// documentSnapshot is the persisted cache row.
type documentSnapshot struct {
	Key            string `gorm:"column:key;primaryKey;size:32;not null"`
	PayloadJSON    string `gorm:"column:payload_json;type:text;not null"`
	SavedAtSeconds int64  `gorm:"column:saved_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (documentSnapshot) TableName() string {
	return "document_snapshots"
}

// SnapshotCache stores the serialized document under a fixed key.
type SnapshotCache struct {
	db     *gorm.DB
	clock  func() time.Time
	logger *zap.Logger
}

// Config describes the cache dependencies.
type Config struct {
	Path   string
	Clock  func() time.Time
	Logger *zap.Logger
}

// Open establishes the SQLite-backed cache and performs schema migration.
func Open(cfg Config) (*SnapshotCache, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("cache: path is required")
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&documentSnapshot{}); err != nil {
		return nil, err
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	logger.Info("snapshot cache initialized", zap.String("path", cfg.Path))
	return &SnapshotCache{db: db, clock: clock, logger: logger}, nil
}

// Close releases the underlying database handle.
func (c *SnapshotCache) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Load returns the cached document if one exists and parses. A corrupt blob
// is logged and discarded; the remote fetch remains the source of truth.
func (c *SnapshotCache) Load() (appdata.Document, bool) {
	var snapshot documentSnapshot
	err := c.db.Where("key = ?", snapshotKey).Take(&snapshot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return appdata.Document{}, false
	}
	if err != nil {
		c.logger.Warn("snapshot cache read failed", zap.Error(err))
		return appdata.Document{}, false
	}

	doc, err := appdata.Decode([]byte(snapshot.PayloadJSON))
	if err != nil {
		c.logger.Warn("discarding corrupt snapshot cache", zap.Error(err))
		return appdata.Document{}, false
	}
	return doc, true
}

// Store writes the document under the fixed key, replacing any previous row.
func (c *SnapshotCache) Store(doc appdata.Document) error {
	payload, err := doc.Encode()
	if err != nil {
		return err
	}

	snapshot := documentSnapshot{
		Key:            snapshotKey,
		PayloadJSON:    string(payload),
		SavedAtSeconds: c.clock().Unix(),
	}
	return c.db.Save(&snapshot).Error
}
