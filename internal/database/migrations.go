package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	defaultMigrationAttempts = 5
	defaultMigrationDelay    = time.Second
)

// ErrSchemaUnavailable reports that the schema could not be brought up to
// date within the retry budget.
var ErrSchemaUnavailable = errors.New("database: schema unavailable")

type migrationRecord struct {
	Name      string    `gorm:"column:name;primaryKey;size:255;not null"`
	CreatedOn time.Time `gorm:"column:created_on;not null"`
}

func (migrationRecord) TableName() string {
	return "_migrations"
}

// Migration is one forward-only schema step. Apply runs inside the
// transaction that records it in the ledger.
type Migration struct {
	Name  string
	Apply func(*gorm.DB) error
}

type SchemaMigratorConfig struct {
	Migrations []Migration
	Attempts   int
	Delay      time.Duration
	Logger     *zap.Logger
	Clock      func() time.Time
	Sleep      func(context.Context, time.Duration) error
}

// SchemaMigrator applies the migration list once per connection key.
type SchemaMigrator struct {
	migrations []Migration
	attempts   int
	delay      time.Duration
	logger     *zap.Logger
	clock      func() time.Time
	sleep      func(context.Context, time.Duration) error

	group singleflight.Group
	mu    sync.Mutex
	ready map[string]bool
}

func NewSchemaMigrator(cfg SchemaMigratorConfig) *SchemaMigrator {
	migrations := cfg.Migrations
	if migrations == nil {
		migrations = Migrations()
	}
	attempts := cfg.Attempts
	if attempts <= 0 {
		attempts = defaultMigrationAttempts
	}
	delay := cfg.Delay
	if delay <= 0 {
		delay = defaultMigrationDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &SchemaMigrator{
		migrations: migrations,
		attempts:   attempts,
		delay:      delay,
		logger:     logger,
		clock:      clock,
		sleep:      sleep,
		ready:      make(map[string]bool),
	}
}

// EnsureSchema brings db up to date. Concurrent callers for the same key
// share one run; once a run succeeds later calls return immediately.
func (m *SchemaMigrator) EnsureSchema(ctx context.Context, key string, db *gorm.DB, dialect Dialect) error {
	if m.isReady(key) {
		return nil
	}
	_, err, _ := m.group.Do(key, func() (any, error) {
		if m.isReady(key) {
			return nil, nil
		}
		if err := m.runWithRetry(ctx, db, dialect); err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.ready[key] = true
		m.mu.Unlock()
		return nil, nil
	})
	return err
}

func (m *SchemaMigrator) isReady(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready[key]
}

func (m *SchemaMigrator) runWithRetry(ctx context.Context, db *gorm.DB, dialect Dialect) error {
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		lastErr = m.apply(ctx, db, dialect)
		if lastErr == nil {
			return nil
		}
		m.logger.Warn("database migration attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("attempts", m.attempts),
			zap.Error(lastErr))
		if attempt == m.attempts {
			break
		}
		if err := m.sleep(ctx, m.delay); err != nil {
			return fmt.Errorf("%w: %w", ErrSchemaUnavailable, err)
		}
	}
	return fmt.Errorf("%w after %d attempts: %w", ErrSchemaUnavailable, m.attempts, lastErr)
}

func (m *SchemaMigrator) apply(ctx context.Context, db *gorm.DB, dialect Dialect) error {
	session := db.WithContext(ctx)
	if dialect == DialectPostgres {
		if err := session.Exec("CREATE SCHEMA IF NOT EXISTS " + SchemaName).Error; err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	if !session.Migrator().HasTable(&migrationRecord{}) {
		if err := session.Migrator().CreateTable(&migrationRecord{}); err != nil {
			return fmt.Errorf("create migration ledger: %w", err)
		}
	}

	var appliedNames []string
	if err := session.Model(&migrationRecord{}).Pluck("name", &appliedNames).Error; err != nil {
		return fmt.Errorf("load migration ledger: %w", err)
	}
	applied := make(map[string]bool, len(appliedNames))
	for _, name := range appliedNames {
		applied[name] = true
	}

	for _, migration := range m.migrations {
		if applied[migration.Name] {
			continue
		}
		err := session.Transaction(func(tx *gorm.DB) error {
			if err := migration.Apply(tx); err != nil {
				return err
			}
			return tx.Create(&migrationRecord{Name: migration.Name, CreatedOn: m.clock()}).Error
		})
		if err != nil {
			return fmt.Errorf("apply migration %s: %w", migration.Name, err)
		}
		m.logger.Info("database migration applied", zap.String("migration", migration.Name))
	}
	return nil
}

func sleepContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
