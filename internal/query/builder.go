// Package query compiles typed filters into parameterized SQL fragments.
package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Style selects the placeholder syntax of the target dialect.
type Style int

const (
	// Question renders "?" placeholders (SQLite).
	Question Style = iota
	// Dollar renders "$n" placeholders (Postgres).
	Dollar
)

// Args collects bound values for one statement. Every builder of the
// statement shares the same Args so placeholder numbering never collides,
// provided fragments are bound in the order they appear in the final SQL.
type Args struct {
	style  Style
	values []any
}

func NewArgs(style Style) *Args {
	return &Args{style: style}
}

// Bind appends value and returns its placeholder.
func (a *Args) Bind(value any) string {
	a.values = append(a.values, value)
	if a.style == Dollar {
		return "$" + strconv.Itoa(len(a.values))
	}
	return "?"
}

// Next is the index the following Bind will use.
func (a *Args) Next() int { return len(a.values) + 1 }

func (a *Args) Values() []any { return a.values }

func (a *Args) Style() Style { return a.style }

// Where accumulates AND-joined conditions.
type Where struct {
	args       *Args
	conditions []string
}

func NewWhere(args *Args) *Where {
	return &Where{args: args}
}

func (w *Where) Eq(column string, value any) *Where {
	w.conditions = append(w.conditions, column+" = "+w.args.Bind(value))
	return w
}

// Compare adds "column op value"; op must be a comparison operator.
func (w *Where) Compare(column string, op Op, value any) *Where {
	w.conditions = append(w.conditions, column+" "+string(op)+" "+w.args.Bind(value))
	return w
}

// Literal adds a condition with no bound values, such as a join predicate.
func (w *Where) Literal(condition string) *Where {
	w.conditions = append(w.conditions, condition)
	return w
}

// Group adds the conditions of inner, parenthesized, as one condition.
func (w *Where) Group(inner *Where) *Where {
	if len(inner.conditions) > 0 {
		w.conditions = append(w.conditions, "("+inner.Conditions()+")")
	}
	return w
}

func (w *Where) Len() int { return len(w.conditions) }

// Conditions renders the AND-joined conditions without the keyword.
func (w *Where) Conditions() string {
	return strings.Join(w.conditions, " AND ")
}

// String renders "WHERE ..." or the empty string.
func (w *Where) String() string {
	if len(w.conditions) == 0 {
		return ""
	}
	return "WHERE " + w.Conditions()
}

// In adds a membership condition: nothing for an empty set, equality for a
// single value, and "IN (...)" otherwise.
func In[T any](w *Where, column string, values []T) *Where {
	switch len(values) {
	case 0:
		return w
	case 1:
		return w.Eq(column, values[0])
	}
	placeholders := make([]string, len(values))
	for i, value := range values {
		placeholders[i] = w.args.Bind(value)
	}
	w.conditions = append(w.conditions, fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ", ")))
	return w
}

// Op is a comparison operator.
type Op string

const (
	OpEq  Op = "="
	OpLt  Op = "<"
	OpLte Op = "<="
	OpGt  Op = ">"
	OpGte Op = ">="
)

// Range bounds a column; nil bounds add nothing.
type Range[T any] struct {
	Less           *T
	LessOrEqual    *T
	Greater        *T
	GreaterOrEqual *T
}

func WithRange[T any](w *Where, column string, r Range[T]) *Where {
	if r.Less != nil {
		w.Compare(column, OpLt, *r.Less)
	}
	if r.LessOrEqual != nil {
		w.Compare(column, OpLte, *r.LessOrEqual)
	}
	if r.Greater != nil {
		w.Compare(column, OpGt, *r.Greater)
	}
	if r.GreaterOrEqual != nil {
		w.Compare(column, OpGte, *r.GreaterOrEqual)
	}
	return w
}

// Direction is an ORDER BY direction.
type Direction bool

const (
	Descending Direction = false
	Ascending  Direction = true
)

func (d Direction) String() string {
	if d == Ascending {
		return "ASC"
	}
	return "DESC"
}

// OrderBy renders "ORDER BY" with every column in the same direction.
func OrderBy(direction Direction, columns ...string) string {
	if len(columns) == 0 {
		return ""
	}
	parts := make([]string, len(columns))
	for i, column := range columns {
		parts[i] = column + " " + direction.String()
	}
	return "ORDER BY " + strings.Join(parts, ", ")
}

// Limit renders a bound LIMIT clause, or nothing for non-positive limits.
func Limit(args *Args, limit int) string {
	if limit <= 0 {
		return ""
	}
	return "LIMIT " + args.Bind(limit)
}
