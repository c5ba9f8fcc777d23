package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/courier/internal/query"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SchemaName is the Postgres schema holding every communication table.
const SchemaName = "communication"

type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// DialectOf infers the dialect from a connection string.
func DialectOf(dsn string) Dialect {
	trimmed := strings.TrimSpace(dsn)
	switch {
	case strings.HasPrefix(trimmed, "postgres://"), strings.HasPrefix(trimmed, "postgresql://"):
		return DialectPostgres
	case strings.Contains(trimmed, "host=") && !strings.HasPrefix(trimmed, "file:"):
		return DialectPostgres
	default:
		return DialectSQLite
	}
}

// Style is the placeholder style used for raw statements on the dialect.
func (d Dialect) Style() query.Style {
	if d == DialectPostgres {
		return query.Dollar
	}
	return query.Question
}

// PoolConfig bounds the connection pool of an opened database.
type PoolConfig struct {
	MaxOpenConns int
}

// Open connects to the database named by dsn without running migrations.
func Open(dsn string, pool PoolConfig) (*gorm.DB, Dialect, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, "", fmt.Errorf("database url is required")
	}
	dialect := DialectOf(dsn)

	var dialector gorm.Dialector
	switch dialect {
	case DialectPostgres:
		dialector = postgres.Open(withSearchPath(dsn))
	default:
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Discard,
	})
	if err != nil {
		return nil, "", err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, "", err
	}
	switch {
	case dialect == DialectSQLite:
		sqlDB.SetMaxOpenConns(1)
	case pool.MaxOpenConns > 0:
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}

	return db, dialect, nil
}

func withSearchPath(dsn string) string {
	if strings.Contains(dsn, "search_path") {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		separator := "?"
		if strings.Contains(dsn, "?") {
			separator = "&"
		}
		return dsn + separator + "search_path=" + SchemaName
	}
	return dsn + " search_path=" + SchemaName
}
