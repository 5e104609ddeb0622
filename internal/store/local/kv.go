package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

type kvEntry struct {
	Key       string    `gorm:"primaryKey;size:191"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (kvEntry) TableName() string { return "kv_entries" }

// KV is a durable JSON key/value table on sqlite. Every namespaced
// collection, the pending queue, the cache and the migration flags live here.
type KV struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at dsn. A plain path and a
// "file:...?mode=memory&cache=shared" URI both work.
func Open(dsn string) (*KV, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&kvEntry{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate local store: %w", err)
	}
	return &KV{db: db}, nil
}

func (kv *KV) Close() error {
	sqlDB, err := kv.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get decodes the value stored under key into dst. It reports false when the
// key has never been written.
func (kv *KV) Get(ctx context.Context, key string, dst any) (bool, error) {
	var entry kvEntry
	err := kv.db.WithContext(ctx).Where("key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(entry.Value), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (kv *KV) GetRaw(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var raw json.RawMessage
	ok, err := kv.Get(ctx, key, &raw)
	return raw, ok, err
}

func (kv *KV) Has(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := kv.db.WithContext(ctx).Model(&kvEntry{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	return count > 0, nil
}

func (kv *KV) Put(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	entry := kvEntry{Key: key, Value: string(payload), UpdatedAt: time.Now().UTC()}
	err = kv.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

func (kv *KV) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := kv.db.WithContext(ctx).Where("key IN ?", keys).Delete(&kvEntry{}).Error; err != nil {
		return fmt.Errorf("delete %v: %w", keys, err)
	}
	return nil
}

// Tx runs fn inside one sqlite transaction. fn must only use the KV it is
// given.
func (kv *KV) Tx(ctx context.Context, fn func(tx *KV) error) error {
	return kv.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&KV{db: tx})
	})
}
