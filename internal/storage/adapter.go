// Package storage implements the workspace-scoped communication store on
// top of gorm, executing statements compiled by the query package.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/courier/internal/communication"
	"github.com/MarcoPoloResearchLab/courier/internal/query"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AdapterConfig struct {
	DB        *gorm.DB
	Style     query.Style
	Workspace communication.WorkspaceID
	NewID     func() (string, error)
	Logger    *zap.Logger
}

// Adapter is a communication.DbAdapter bound to one workspace.
type Adapter struct {
	db        *gorm.DB
	style     query.Style
	workspace communication.WorkspaceID
	newID     func() (string, error)
	logger    *zap.Logger
}

var _ communication.DbAdapter = (*Adapter)(nil)

func NewAdapter(cfg AdapterConfig) (*Adapter, error) {
	if cfg.DB == nil {
		return nil, errors.New("database handle is required")
	}
	if strings.TrimSpace(string(cfg.Workspace)) == "" {
		return nil, query.ErrMissingWorkspace
	}
	newID := cfg.NewID
	if newID == nil {
		newID = func() (string, error) {
			value, err := uuid.NewV7()
			if err != nil {
				return "", err
			}
			return value.String(), nil
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{db: cfg.DB, style: cfg.Style, workspace: cfg.Workspace, newID: newID, logger: logger}, nil
}

func (a *Adapter) Workspace() communication.WorkspaceID { return a.workspace }

func (a *Adapter) args() *query.Args { return query.NewArgs(a.style) }

func (a *Adapter) scoped(args *query.Args, column string) (*query.Where, error) {
	return query.Scoped(args, column, string(a.workspace))
}

func (a *Adapter) exec(ctx context.Context, db *gorm.DB, statement string, args *query.Args) (int64, error) {
	result := db.WithContext(ctx).Exec(statement, args.Values()...)
	if result.Error != nil {
		return 0, translate(result.Error)
	}
	return result.RowsAffected, nil
}

// query runs a statement and hands every row to scan. Rows are drained and
// closed before returning so the connection is free for the next statement.
func (a *Adapter) query(ctx context.Context, db *gorm.DB, statement string, args *query.Args, scan func(*sql.Rows) error) error {
	rows, err := db.WithContext(ctx).Raw(statement, args.Values()...).Rows()
	if err != nil {
		return translate(err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	return translate(rows.Err())
}

func (a *Adapter) transaction(ctx context.Context, run func(tx *gorm.DB) error) error {
	return a.db.WithContext(ctx).Transaction(run)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, communication.ErrDuplicate) {
		return err
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", communication.ErrDuplicate, err)
	}
	return err
}

func isUniqueViolation(err error) bool {
	message := strings.ToLower(err.Error())
	return strings.Contains(message, "unique constraint") ||
		strings.Contains(message, "duplicate key") ||
		strings.Contains(message, "sqlstate 23505")
}

func normalize(value time.Time) time.Time {
	return communication.Normalize(value)
}

func direction(order communication.SortOrder) query.Direction {
	if order == communication.SortAscending {
		return query.Ascending
	}
	return query.Descending
}

func timeRange(r communication.TimeRange) query.Range[time.Time] {
	normalized := func(value *time.Time) *time.Time {
		if value == nil {
			return nil
		}
		result := normalize(*value)
		return &result
	}
	return query.Range[time.Time]{
		Less:           normalized(r.Less),
		LessOrEqual:    normalized(r.LessOrEqual),
		Greater:        normalized(r.Greater),
		GreaterOrEqual: normalized(r.GreaterOrEqual),
	}
}

// ownedContexts renders a subquery selecting the ids of contexts in the
// workspace, optionally narrowed to one context and owner.
func (a *Adapter) ownedContexts(args *query.Args, contextID communication.ContextID, account communication.AccountID) (string, error) {
	where, err := a.scoped(args, "workspace_id")
	if err != nil {
		return "", err
	}
	if contextID != "" {
		where.Eq("id", string(contextID))
	}
	if account != "" {
		where.Eq("account", string(account))
	}
	return "SELECT id FROM notification_contexts " + where.String(), nil
}
