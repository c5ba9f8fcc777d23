package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInCollapsesByCardinality(t *testing.T) {
	testCases := []struct {
		name      string
		values    []string
		wantWhere string
		wantArgs  []any
	}{
		{name: "omitted", values: nil, wantWhere: "", wantArgs: nil},
		{name: "single", values: []string{"a"}, wantWhere: "WHERE card_id = $1", wantArgs: []any{"a"}},
		{name: "many", values: []string{"a", "b", "c"}, wantWhere: "WHERE card_id IN ($1, $2, $3)", wantArgs: []any{"a", "b", "c"}},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			args := NewArgs(Dollar)
			where := In(NewWhere(args), "card_id", testCase.values)
			require.Equal(t, testCase.wantWhere, where.String())
			require.Equal(t, testCase.wantArgs, args.Values())
		})
	}
}

func TestArgsThreadAcrossBuilders(t *testing.T) {
	args := NewArgs(Dollar)
	outer, err := Scoped(args, "nc.workspace_id", "ws-1")
	require.NoError(t, err)
	In(outer, "nc.card_id", []string{"c1", "c2"})

	inner := NewWhere(args)
	inner.Eq("n.read", false)
	limit := Limit(args, 10)

	require.Equal(t, "WHERE nc.workspace_id = $1 AND nc.card_id IN ($2, $3)", outer.String())
	require.Equal(t, "WHERE n.read = $4", inner.String())
	require.Equal(t, "LIMIT $5", limit)
	require.Equal(t, 6, args.Next())
	require.Equal(t, []any{"ws-1", "c1", "c2", false, 10}, args.Values())
}

func TestQuestionStyle(t *testing.T) {
	args := NewArgs(Question)
	where := NewWhere(args).Eq("a", 1)
	In(where, "b", []int{2, 3})
	require.Equal(t, "WHERE a = ? AND b IN (?, ?)", where.String())
	require.Len(t, args.Values(), 3)
}

func TestWithRange(t *testing.T) {
	low := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	high := low.Add(time.Hour)
	args := NewArgs(Dollar)
	where := WithRange(NewWhere(args), "created", Range[time.Time]{GreaterOrEqual: &low, Less: &high})
	require.Equal(t, "WHERE created < $1 AND created >= $2", where.String())
	require.Equal(t, []any{high, low}, args.Values())

	empty := WithRange(NewWhere(NewArgs(Dollar)), "created", Range[time.Time]{})
	require.Equal(t, "", empty.String())
}

func TestScopedRequiresWorkspace(t *testing.T) {
	_, err := Scoped(NewArgs(Dollar), "workspace_id", "")
	require.ErrorIs(t, err, ErrMissingWorkspace)
}

func TestGroupAndLiteral(t *testing.T) {
	args := NewArgs(Dollar)
	inner := NewWhere(args).Eq("a", 1).Literal("b = c")
	outer := NewWhere(args).Group(inner).Group(NewWhere(args))
	require.Equal(t, "WHERE (a = $1 AND b = c)", outer.String())
}

func TestOrderBy(t *testing.T) {
	require.Equal(t, "ORDER BY created ASC, id ASC", OrderBy(Ascending, "created", "id"))
	require.Equal(t, "ORDER BY created DESC", OrderBy(Descending, "created"))
	require.Equal(t, "", OrderBy(Ascending))
	require.Equal(t, "", Limit(NewArgs(Dollar), 0))
}

func TestInsertBuild(t *testing.T) {
	args := NewArgs(Dollar)
	args.Bind("preceding")
	statement, err := Insert{
		Table:     "collaborators",
		Columns:   []string{"workspace_id", "card_id", "account"},
		Rows:      [][]any{{"ws", "card", "a"}, {"ws", "card", "b"}},
		Conflict:  &OnConflict{Columns: []string{"workspace_id", "card_id", "account"}, DoNothing: true},
		Returning: []string{"account"},
	}.Build(args)
	require.NoError(t, err)
	require.Equal(t,
		"INSERT INTO collaborators (workspace_id, card_id, account) VALUES ($2, $3, $4), ($5, $6, $7)"+
			" ON CONFLICT (workspace_id, card_id, account) DO NOTHING RETURNING account",
		statement)

	upsert, err := Insert{
		Table:    "peers",
		Columns:  []string{"k", "extra"},
		Rows:     [][]any{{"k", "{}"}},
		Conflict: &OnConflict{Columns: []string{"k"}, Update: []string{"extra"}},
	}.Build(NewArgs(Question))
	require.NoError(t, err)
	require.Equal(t, "INSERT INTO peers (k, extra) VALUES (?, ?) ON CONFLICT (k) DO UPDATE SET extra = excluded.extra", upsert)

	_, err = Insert{Table: "t", Columns: []string{"a"}}.Build(NewArgs(Dollar))
	require.ErrorIs(t, err, ErrEmptyInsert)

	_, err = Insert{Table: "t", Columns: []string{"a"}, Rows: [][]any{{1, 2}}}.Build(NewArgs(Dollar))
	require.Error(t, err)
}
