package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strings"
)

// ParseObjectType validates raw as an object type.
func ParseObjectType(raw string) (ObjectType, error) {
	typ := ObjectType(strings.TrimSpace(raw))
	if !slices.Contains(ObjectTypes, typ) {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectType, raw)
	}

	return typ, nil
}

// CreateObject creates an empty object at revision 0.
func (s *Store) CreateObject(ctx context.Context, typ ObjectType, title string) (*Object, error) {
	err := s.ready(ctx, "create object")
	if err != nil {
		return nil, err
	}

	typ, err = ParseObjectType(string(typ))
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}

	id, err := NewUUIDv7()
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}

	now := s.nowMillis()
	title = strings.TrimSpace(title)

	_, err = s.sql.ExecContext(ctx, `
		INSERT INTO objects (id, type_key, title, revision, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)`, id.String(), string(typ), title, now, now)
	if err != nil {
		return nil, fmt.Errorf("create object: %w", err)
	}

	s.log.Debug().Str("object", id.String()).Str("type", string(typ)).Msg("object created")

	return &Object{
		ID:        id.String(),
		Type:      typ,
		Title:     title,
		CreatedAt: fromMillis(now),
		UpdatedAt: fromMillis(now),
	}, nil
}

// GetObject returns an object, including a trashed one.
func (s *Store) GetObject(ctx context.Context, id string) (*Object, error) {
	err := s.ready(ctx, "get object")
	if err != nil {
		return nil, err
	}

	obj, err := loadObject(ctx, s.sql, id)
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}

	return obj, nil
}

// ListObjects returns objects ordered by id, which is creation order.
func (s *Store) ListObjects(ctx context.Context, opts *ListOptions) ([]Object, error) {
	err := s.ready(ctx, "list objects")
	if err != nil {
		return nil, err
	}

	options := ListOptions{}
	if opts != nil {
		options = *opts
	}

	var (
		clauses []string
		args    []any
	)

	if !options.IncludeTrashed {
		clauses = append(clauses, "deleted_at IS NULL")
	}

	if options.Type != "" {
		clauses = append(clauses, "type_key = ?")
		args = append(args, string(options.Type))
	}

	query := "SELECT " + objectColumns + " FROM objects"
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}

	query += " ORDER BY id"

	if options.Limit > 0 {
		query += " LIMIT ?"

		args = append(args, options.Limit)
	}

	rows, err := s.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	defer func() { _ = rows.Close() }()

	objects := []Object{}

	for rows.Next() {
		obj, scanErr := scanObject(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("list objects: scan: %w", scanErr)
		}

		objects = append(objects, *obj)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list objects: rows: %w", err)
	}

	return objects, nil
}

// TrashObject moves an object to the trash. Its block rows stay untouched;
// they become unreachable and leave the search and reference indexes.
// Trashing an already trashed object is a no-op.
func (s *Store) TrashObject(ctx context.Context, id string) error {
	err := s.ready(ctx, "trash object")
	if err != nil {
		return err
	}

	var stats IndexStats

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		obj, err := loadObject(ctx, tx, id)
		if err != nil {
			return err
		}

		if obj.Trashed() {
			return nil
		}

		now := s.nowMillis()

		_, err = tx.ExecContext(ctx, `
			UPDATE objects SET deleted_at = ?, updated_at = ?, revision = revision + 1
			WHERE id = ?`, now, now, id)
		if err != nil {
			return fmt.Errorf("mark trashed: %w", err)
		}

		stats, err = dropObjectIndex(ctx, tx, id)

		return err
	})
	if err != nil {
		return fmt.Errorf("trash object: %w", err)
	}

	s.log.Info().Str("object", id).Int("index_writes", stats.Writes()).Msg("object trashed")

	return nil
}

// dropObjectIndex removes every derived index row sourced from an object.
func dropObjectIndex(ctx context.Context, tx *sql.Tx, objectID string) (IndexStats, error) {
	var stats IndexStats

	res, err := tx.ExecContext(ctx, `
		DELETE FROM block_terms
		WHERE block_id IN (SELECT block_id FROM block_search WHERE object_id = ?)`, objectID)
	if err != nil {
		return stats, fmt.Errorf("drop terms: %w", err)
	}

	stats.TermsRemoved = rowsAffected(res)

	res, err = tx.ExecContext(ctx, "DELETE FROM block_search WHERE object_id = ?", objectID)
	if err != nil {
		return stats, fmt.Errorf("drop search rows: %w", err)
	}

	stats.SearchRemoved = rowsAffected(res)

	res, err = tx.ExecContext(ctx, "DELETE FROM block_refs WHERE source_object_id = ?", objectID)
	if err != nil {
		return stats, fmt.Errorf("drop refs: %w", err)
	}

	stats.RefsRemoved = rowsAffected(res)

	return stats, nil
}

func rowsAffected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}

	return int(n)
}
