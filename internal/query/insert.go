package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyInsert reports an insert without rows.
var ErrEmptyInsert = errors.New("query: insert has no rows")

// OnConflict is the conflict policy of an insert.
type OnConflict struct {
	Columns   []string
	DoNothing bool
	// Update lists the columns overwritten from the excluded row.
	Update []string
}

// Insert describes a multi-row INSERT statement.
type Insert struct {
	Table     string
	Columns   []string
	Rows      [][]any
	Conflict  *OnConflict
	Returning []string
}

// Build renders the statement, binding every row value in order.
func (i Insert) Build(args *Args) (string, error) {
	if len(i.Rows) == 0 {
		return "", ErrEmptyInsert
	}
	var sql strings.Builder
	fmt.Fprintf(&sql, "INSERT INTO %s (%s) VALUES ", i.Table, strings.Join(i.Columns, ", "))
	for rowIndex, row := range i.Rows {
		if len(row) != len(i.Columns) {
			return "", fmt.Errorf("query: row %d has %d values for %d columns", rowIndex, len(row), len(i.Columns))
		}
		if rowIndex > 0 {
			sql.WriteString(", ")
		}
		placeholders := make([]string, len(row))
		for valueIndex, value := range row {
			placeholders[valueIndex] = args.Bind(value)
		}
		sql.WriteString("(" + strings.Join(placeholders, ", ") + ")")
	}
	if i.Conflict != nil {
		sql.WriteString(" ON CONFLICT")
		if len(i.Conflict.Columns) > 0 {
			sql.WriteString(" (" + strings.Join(i.Conflict.Columns, ", ") + ")")
		}
		switch {
		case len(i.Conflict.Update) > 0:
			assignments := make([]string, len(i.Conflict.Update))
			for index, column := range i.Conflict.Update {
				assignments[index] = column + " = excluded." + column
			}
			sql.WriteString(" DO UPDATE SET " + strings.Join(assignments, ", "))
		default:
			sql.WriteString(" DO NOTHING")
		}
	}
	if len(i.Returning) > 0 {
		sql.WriteString(" RETURNING " + strings.Join(i.Returning, ", "))
	}
	return sql.String(), nil
}
