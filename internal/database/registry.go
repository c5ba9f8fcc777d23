package database

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Opener opens a database for a connection string.
type Opener func(dsn string) (*gorm.DB, Dialect, error)

type RegistryConfig struct {
	Migrator *SchemaMigrator
	Opener   Opener
	Pool     PoolConfig
	Logger   *zap.Logger
}

// Registry caches one pooled connection per connection string and counts
// the references handed out for it.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*registryEntry
	migrator *SchemaMigrator
	open     Opener
	logger   *zap.Logger
}

type registryEntry struct {
	db      *gorm.DB
	dialect Dialect
	refs    int
	onClose func()
}

func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if cfg.Migrator == nil {
		return nil, errors.New("schema migrator is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opener := cfg.Opener
	if opener == nil {
		pool := cfg.Pool
		opener = func(dsn string) (*gorm.DB, Dialect, error) {
			return Open(dsn, pool)
		}
	}
	return &Registry{
		entries:  make(map[string]*registryEntry),
		migrator: cfg.Migrator,
		open:     opener,
		logger:   logger,
	}, nil
}

// Reference is one holder's share of a cached connection.
type Reference struct {
	registry *Registry
	dsn      string
	db       *gorm.DB
	dialect  Dialect
	once     sync.Once
	closeErr error
}

func (r *Reference) DB() *gorm.DB { return r.db }

func (r *Reference) Dialect() Dialect { return r.dialect }

// Close releases the reference; the last release closes the pool.
func (r *Reference) Close() error {
	r.once.Do(func() {
		r.closeErr = r.registry.release(r.dsn)
	})
	return r.closeErr
}

// Acquire returns a reference to the connection for dsn, opening it on
// first use and ensuring its schema before returning.
func (r *Registry) Acquire(ctx context.Context, dsn string) (*Reference, error) {
	r.mu.Lock()
	entry, ok := r.entries[dsn]
	if !ok {
		db, dialect, err := r.open(dsn)
		if err != nil {
			r.mu.Unlock()
			return nil, fmt.Errorf("open database: %w", err)
		}
		entry = &registryEntry{db: db, dialect: dialect}
		entry.onClose = func() {
			delete(r.entries, dsn)
		}
		r.entries[dsn] = entry
		r.logger.Info("database connection opened", zap.String("dialect", string(dialect)))
	}
	entry.refs++
	r.mu.Unlock()

	reference := &Reference{registry: r, dsn: dsn, db: entry.db, dialect: entry.dialect}
	if err := r.migrator.EnsureSchema(ctx, dsn, entry.db, entry.dialect); err != nil {
		_ = reference.Close()
		return nil, err
	}
	return reference, nil
}

// Len reports the number of cached connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) release(dsn string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[dsn]
	if !ok {
		return nil
	}
	entry.refs--
	if entry.refs > 0 {
		return nil
	}
	entry.onClose()

	sqlDB, err := entry.db.DB()
	if err != nil {
		return err
	}
	r.logger.Info("database connection closed", zap.String("dialect", string(entry.dialect)))
	return sqlDB.Close()
}
