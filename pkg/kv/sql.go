package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/ethpandaops/contentoor/pkg/config"
)

// Entry is one stored key.
type Entry struct {
	Key       string     `gorm:"primaryKey;size:512"`
	Value     string     `gorm:"type:text;not null"`
	ExpiresAt *time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// TableName pins the table name independent of gorm's pluralisation.
func (Entry) TableName() string {
	return "kv_entries"
}

// Expirer is implemented by backends that need expired entries purged
// periodically instead of expiring them natively.
type Expirer interface {
	DeleteExpired(ctx context.Context) error
}

// Compile-time interface checks.
var (
	_ Backend = (*SQLStore)(nil)
	_ Expirer = (*SQLStore)(nil)
)

// SQLStore keeps values in a single gorm-managed table. Expired rows are
// hidden from reads immediately and removed by DeleteExpired.
type SQLStore struct {
	log logrus.FieldLogger
	cfg *config.StoreConfig
	db  *gorm.DB
}

// NewSQLStore creates a SQL-backed store for the sqlite or postgres driver.
func NewSQLStore(log logrus.FieldLogger, cfg *config.StoreConfig) *SQLStore {
	return &SQLStore{
		log: log.WithField("component", "kv-sql"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *SQLStore) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(&Entry{}); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *SQLStore) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// GetText implements Store.
func (s *SQLStore) GetText(ctx context.Context, key string) (string, error) {
	var entry Entry

	err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}

	if err != nil {
		return "", fmt.Errorf("getting %s: %w", key, err)
	}

	return entry.Value, nil
}

// GetJSON implements Store.
func (s *SQLStore) GetJSON(ctx context.Context, key string, dest any) error {
	raw, err := s.GetText(ctx, key)
	if err != nil {
		return err
	}

	return decodeJSON(key, raw, dest)
}

// Put implements Store.
func (s *SQLStore) Put(
	ctx context.Context, key, value string, ttl time.Duration,
) error {
	entry := Entry{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}

	if ttl > 0 {
		expiresAt := time.Now().UTC().Add(ttl)
		entry.ExpiresAt = &expiresAt
	}

	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "expires_at", "updated_at"}),
		}).
		Create(&entry).Error
	if err != nil {
		return fmt.Errorf("putting %s: %w", key, err)
	}

	return nil
}

// Replace implements Store.
func (s *SQLStore) Replace(ctx context.Context, key, value string) error {
	now := time.Now().UTC()

	result := s.db.WithContext(ctx).
		Model(&Entry{}).
		Where("key = ?", key).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Updates(map[string]any{"value": value, "updated_at": now})
	if result.Error != nil {
		return fmt.Errorf("replacing %s: %w", key, result.Error)
	}

	if result.RowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Delete implements Store.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if err := s.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&Entry{}).Error; err != nil {
		return fmt.Errorf("deleting %s: %w", key, err)
	}

	return nil
}

// DeleteExpired removes every entry whose TTL has passed.
func (s *SQLStore) DeleteExpired(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Where("expires_at IS NOT NULL AND expires_at <= ?", time.Now().UTC()).
		Delete(&Entry{})
	if result.Error != nil {
		return fmt.Errorf("deleting expired entries: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		s.log.WithField("count", result.RowsAffected).
			Debug("Cleaned up expired entries")
	}

	return nil
}
