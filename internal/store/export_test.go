package store

import (
	"context"
	"database/sql"
)

// SetBeforeCommitHook installs fn to run after a patch wrote everything and
// right before its transaction commits.
func SetBeforeCommitHook(s *Store, fn func(ctx context.Context, tx *sql.Tx) error) {
	s.beforeCommit = fn
}
