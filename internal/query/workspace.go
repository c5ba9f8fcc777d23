package query

import "errors"

// ErrMissingWorkspace reports a statement built without a workspace scope.
var ErrMissingWorkspace = errors.New("query: workspace is required")

// Scoped starts a Where whose first condition binds the workspace.
func Scoped(args *Args, column, workspace string) (*Where, error) {
	if workspace == "" {
		return nil, ErrMissingWorkspace
	}
	return NewWhere(args).Eq(column, workspace), nil
}
