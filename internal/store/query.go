package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/calvinalkan/typenote/internal/block"
)

// DefaultSearchLimit caps SearchBlocks when no limit is given.
const DefaultSearchLimit = 50

// GetTree returns the reachable blocks of a live object as a tree.
// Blocks under a soft-deleted ancestor are left out.
func (s *Store) GetTree(ctx context.Context, objectID string) (*Tree, error) {
	err := s.ready(ctx, "get tree")
	if err != nil {
		return nil, err
	}

	obj, err := loadObject(ctx, s.sql, objectID)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}

	if obj.Trashed() {
		return nil, fmt.Errorf("get tree: %w: %s is trashed", ErrObjectNotFound, objectID)
	}

	rows, err := s.sql.QueryContext(ctx, `
		WITH RECURSIVE reachable(id, depth) AS (
			SELECT id, 0 FROM blocks
			WHERE object_id = ? AND parent_id IS NULL AND deleted_at IS NULL
			UNION ALL
			SELECT b.id, r.depth + 1 FROM blocks b
			JOIN reachable r ON b.parent_id = r.id
			WHERE b.deleted_at IS NULL AND b.object_id = ?
		)
		SELECT b.id, b.parent_id, b.type, b.content, b.order_key, b.created_at, b.updated_at
		FROM blocks b
		JOIN reachable r ON r.id = b.id
		ORDER BY r.depth, b.parent_id, b.order_key, b.id`, objectID, objectID)
	if err != nil {
		return nil, fmt.Errorf("get tree: %w", err)
	}

	defer func() { _ = rows.Close() }()

	tree := &Tree{Object: *obj, Blocks: []*Block{}}
	byID := make(map[string]*Block)

	for rows.Next() {
		var (
			b         Block
			parentID  sql.NullString
			typ       string
			raw       string
			createdAt int64
			updatedAt int64
		)

		err = rows.Scan(&b.ID, &parentID, &typ, &raw, &b.OrderKey, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("get tree: scan: %w", err)
		}

		b.ParentID = nullStringValue(parentID)
		b.Type = block.Type(typ)
		b.CreatedAt = fromMillis(createdAt)
		b.UpdatedAt = fromMillis(updatedAt)

		b.Content, err = block.Decode(raw)
		if err != nil {
			return nil, fmt.Errorf("get tree: block %s: %w", b.ID, err)
		}

		node := &b
		byID[b.ID] = node

		// Rows come parent-depth first, so a parent is always seen before its children.
		if parent, ok := byID[b.ParentID]; ok && b.ParentID != "" {
			parent.Children = append(parent.Children, node)
		} else {
			tree.Blocks = append(tree.Blocks, node)
		}
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("get tree: rows: %w", err)
	}

	return tree, nil
}

// SearchBlocks returns reachable blocks whose text contains every term of
// query. The last term also matches as a prefix, so partially typed words
// find results. Matches are ordered by object, then block id.
func (s *Store) SearchBlocks(ctx context.Context, query string, filters SearchFilters) ([]SearchMatch, error) {
	err := s.ready(ctx, "search")
	if err != nil {
		return nil, err
	}

	terms := block.Terms(query)
	if len(terms) == 0 {
		return []SearchMatch{}, nil
	}

	words := block.Words(query)
	sqlQuery, args := buildSearchQuery(words[len(words)-1], terms, filters)

	rows, err := s.sql.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	defer func() { _ = rows.Close() }()

	matches := []SearchMatch{}

	for rows.Next() {
		var (
			m          SearchMatch
			blockType  string
			objectType string
		)

		err = rows.Scan(&m.BlockID, &blockType, &m.ObjectID, &m.ObjectTitle, &objectType, &m.Text)
		if err != nil {
			return nil, fmt.Errorf("search: scan: %w", err)
		}

		m.BlockType = block.Type(blockType)
		m.ObjectType = ObjectType(objectType)
		matches = append(matches, m)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("search: rows: %w", err)
	}

	return matches, nil
}

// maxRune is the UTF-8 encoding of U+10FFFF, greater than any term suffix.
const maxRune = "\xf4\x8f\xbf\xbf"

func buildSearchQuery(prefix string, terms []string, filters SearchFilters) (string, []any) {
	var (
		matchers []string
		args     []any
	)

	for _, term := range terms {
		if term == prefix {
			matchers = append(matchers, "SELECT block_id FROM block_terms WHERE term >= ? AND term < ?")
			args = append(args, term, term+maxRune)

			continue
		}

		matchers = append(matchers, "SELECT block_id FROM block_terms WHERE term = ?")
		args = append(args, term)
	}

	query := `
		SELECT s.block_id, b.type, s.object_id, o.title, o.type_key, s.text
		FROM block_search s
		JOIN blocks b ON b.id = s.block_id
		JOIN objects o ON o.id = s.object_id
		WHERE o.deleted_at IS NULL
			AND s.block_id IN (` + strings.Join(matchers, " INTERSECT ") + `)`

	if filters.ObjectID != "" {
		query += " AND s.object_id = ?"

		args = append(args, filters.ObjectID)
	}

	if filters.ObjectType != "" {
		query += " AND o.type_key = ?"

		args = append(args, string(filters.ObjectType))
	}

	if filters.BlockType != "" {
		query += " AND b.type = ?"

		args = append(args, string(filters.BlockType))
	}

	limit := filters.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	query += " ORDER BY s.object_id, s.block_id LIMIT ?"

	args = append(args, limit)

	return query, args
}

// GetBacklinks returns every reference from a reachable block of a live
// object to objectID, ordered by source object and block.
func (s *Store) GetBacklinks(ctx context.Context, objectID string) ([]Backlink, error) {
	err := s.ready(ctx, "backlinks")
	if err != nil {
		return nil, err
	}

	_, err = loadObject(ctx, s.sql, objectID)
	if err != nil {
		return nil, fmt.Errorf("backlinks: %w", err)
	}

	rows, err := s.sql.QueryContext(ctx, `
		SELECT r.source_block_id, r.source_object_id, o.title, r.target_block_id, COALESCE(s.text, '')
		FROM block_refs r
		JOIN objects o ON o.id = r.source_object_id
		LEFT JOIN block_search s ON s.block_id = r.source_block_id
		WHERE r.target_object_id = ? AND o.deleted_at IS NULL
		ORDER BY r.source_object_id, r.source_block_id, r.target_block_id`, objectID)
	if err != nil {
		return nil, fmt.Errorf("backlinks: %w", err)
	}

	defer func() { _ = rows.Close() }()

	links := []Backlink{}

	for rows.Next() {
		var l Backlink

		err = rows.Scan(&l.SourceBlockID, &l.SourceObjectID, &l.SourceObjectTitle, &l.TargetBlockID, &l.Text)
		if err != nil {
			return nil, fmt.Errorf("backlinks: scan: %w", err)
		}

		links = append(links, l)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("backlinks: rows: %w", err)
	}

	return links, nil
}
