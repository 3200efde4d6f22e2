package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/calvinalkan/typenote/internal/block"
	"github.com/calvinalkan/typenote/internal/patch"
)

// queryer is the read surface shared by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// inTx runs fn in one immediate transaction and commits when fn returns nil.
// Any error, or a panic unwinding through, rolls everything back.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin txn: %w", err)
	}

	committed := false

	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	err = fn(tx)
	if err != nil {
		return err
	}

	err = tx.Commit()
	if err != nil {
		return fmt.Errorf("sqlite: commit txn: %w", err)
	}

	// Important: if not set, defer() at the top will rollback the txn.
	committed = true

	return nil
}

const objectColumns = "id, type_key, title, revision, created_at, updated_at, deleted_at"

func scanObject(row interface{ Scan(dest ...any) error }) (*Object, error) {
	var (
		obj       Object
		typeKey   string
		createdAt int64
		updatedAt int64
		deletedAt sql.NullInt64
	)

	err := row.Scan(&obj.ID, &typeKey, &obj.Title, &obj.Revision, &createdAt, &updatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}

	obj.Type = ObjectType(typeKey)
	obj.CreatedAt = fromMillis(createdAt)
	obj.UpdatedAt = fromMillis(updatedAt)
	obj.DeletedAt = nullTimePtr(deletedAt)

	return &obj, nil
}

// loadObject reads one object, trashed or not. A missing row wraps
// [ErrObjectNotFound].
func loadObject(ctx context.Context, q queryer, id string) (*Object, error) {
	row := q.QueryRowContext(ctx, "SELECT "+objectColumns+" FROM objects WHERE id = ?", id)

	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("load object %s: %w", id, err)
	}

	return obj, nil
}

// loadNodes reads every block row of an object, tombstones included.
func loadNodes(ctx context.Context, q queryer, objectID string) ([]patch.Node, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, parent_id, type, content, order_key, created_at, updated_at, deleted_at
		FROM blocks
		WHERE object_id = ?`, objectID)
	if err != nil {
		return nil, fmt.Errorf("load blocks: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var nodes []patch.Node

	for rows.Next() {
		var (
			n         patch.Node
			parentID  sql.NullString
			typ       string
			raw       string
			deletedAt sql.NullInt64
		)

		err = rows.Scan(&n.ID, &parentID, &typ, &raw, &n.OrderKey, &n.CreatedAt, &n.UpdatedAt, &deletedAt)
		if err != nil {
			return nil, fmt.Errorf("load blocks: scan: %w", err)
		}

		n.ParentID = nullStringValue(parentID)
		n.Type = block.Type(typ)
		n.DeletedAt = deletedAt.Int64

		n.Content, err = block.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("load blocks: %s: %w", n.ID, err)
		}

		nodes = append(nodes, n)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("load blocks: rows: %w", err)
	}

	return nodes, nil
}

// foreignBlocks maps each of ids that exists under another object to that
// object's id.
func foreignBlocks(ctx context.Context, q queryer, objectID string, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	if len(ids) == 0 {
		return out, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	args := make([]any, 0, len(ids)+1)
	args = append(args, objectID)

	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := q.QueryContext(ctx,
		"SELECT id, object_id FROM blocks WHERE object_id <> ? AND id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, fmt.Errorf("lookup foreign blocks: %w", err)
	}

	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, owner string

		err = rows.Scan(&id, &owner)
		if err != nil {
			return nil, fmt.Errorf("lookup foreign blocks: scan: %w", err)
		}

		out[id] = owner
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("lookup foreign blocks: rows: %w", err)
	}

	return out, nil
}

// writeNode inserts or fully rewrites one block row with its final state.
func writeNode(ctx context.Context, tx *sql.Tx, objectID string, n *patch.Node, created bool) error {
	raw, err := n.Content.Encode()
	if err != nil {
		return fmt.Errorf("block %s: %w", n.ID, err)
	}

	if created {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO blocks (id, object_id, parent_id, type, content, order_key, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, objectID, nullString(n.ParentID), string(n.Type), raw, n.OrderKey,
			n.CreatedAt, n.UpdatedAt, nullMillis(n.DeletedAt))
		if err != nil {
			return fmt.Errorf("insert block %s: %w", n.ID, err)
		}

		return nil
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE blocks
		SET parent_id = ?, content = ?, order_key = ?, updated_at = ?, deleted_at = ?
		WHERE id = ? AND object_id = ?`,
		nullString(n.ParentID), raw, n.OrderKey, n.UpdatedAt, nullMillis(n.DeletedAt), n.ID, objectID)
	if err != nil {
		return fmt.Errorf("update block %s: %w", n.ID, err)
	}

	return nil
}
