package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/calvinalkan/typenote/internal/block"
	"github.com/calvinalkan/typenote/internal/patch"
)

// ExportVersion is the document format written by ExportObject.
const ExportVersion = 1

// Export is a self-contained copy of one object and all its block rows,
// tombstones included, so deleted blocks stay restorable after an import.
type Export struct {
	Version int           `json:"version"`
	Object  Object        `json:"object"`
	Blocks  []ExportBlock `json:"blocks"`
}

// ExportBlock is one stored block row.
type ExportBlock struct {
	ID        string        `json:"id"`
	ParentID  string        `json:"parent_id,omitempty"`
	Type      block.Type    `json:"type"`
	Content   block.Content `json:"content"`
	OrderKey  string        `json:"order_key"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	DeletedAt *time.Time    `json:"deleted_at,omitempty"`
}

// ExportObject returns every stored row of an object, trashed or not.
// Blocks are ordered by parent, then sibling order.
func (s *Store) ExportObject(ctx context.Context, objectID string) (*Export, error) {
	err := s.ready(ctx, "export")
	if err != nil {
		return nil, err
	}

	obj, err := loadObject(ctx, s.sql, objectID)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	nodes, err := loadNodes(ctx, s.sql, objectID)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}

	slices.SortFunc(nodes, func(a, b patch.Node) int {
		if c := strings.Compare(a.ParentID, b.ParentID); c != 0 {
			return c
		}

		if c := strings.Compare(a.OrderKey, b.OrderKey); c != 0 {
			return c
		}

		return strings.Compare(a.ID, b.ID)
	})

	doc := &Export{Version: ExportVersion, Object: *obj, Blocks: make([]ExportBlock, 0, len(nodes))}

	for _, n := range nodes {
		eb := ExportBlock{
			ID:        n.ID,
			ParentID:  n.ParentID,
			Type:      n.Type,
			Content:   n.Content,
			OrderKey:  n.OrderKey,
			CreatedAt: fromMillis(n.CreatedAt),
			UpdatedAt: fromMillis(n.UpdatedAt),
		}

		if n.Deleted() {
			deletedAt := fromMillis(n.DeletedAt)
			eb.DeletedAt = &deletedAt
		}

		doc.Blocks = append(doc.Blocks, eb)
	}

	return doc, nil
}

// ImportObject stores an exported object under its original ids and indexes
// its reachable blocks. The object id and every block id must be unused.
func (s *Store) ImportObject(ctx context.Context, doc *Export) (*Object, error) {
	err := s.ready(ctx, "import")
	if err != nil {
		return nil, err
	}

	nodes, err := s.checkExport(doc)
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	obj := doc.Object

	var stats IndexStats

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := loadObject(ctx, tx, obj.ID)
		if err == nil {
			return fmt.Errorf("%w: %s", ErrObjectExists, obj.ID)
		}

		if !errors.Is(err, ErrObjectNotFound) {
			return err
		}

		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}

		taken, err := foreignBlocks(ctx, tx, obj.ID, ids)
		if err != nil {
			return err
		}

		if len(taken) > 0 {
			return fmt.Errorf("%w: %d block ids already in use", ErrInvalidExport, len(taken))
		}

		var deletedAt int64
		if obj.DeletedAt != nil {
			deletedAt = obj.DeletedAt.UnixMilli()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO objects (id, type_key, title, revision, created_at, updated_at, deleted_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			obj.ID, string(obj.Type), obj.Title, obj.Revision,
			obj.CreatedAt.UnixMilli(), obj.UpdatedAt.UnixMilli(), nullMillis(deletedAt))
		if err != nil {
			return fmt.Errorf("insert object: %w", err)
		}

		for i := range nodes {
			err = writeNode(ctx, tx, obj.ID, &nodes[i], true)
			if err != nil {
				return err
			}
		}

		entries, err := s.objectEntries(ctx, tx, &obj)
		if err != nil {
			return err
		}

		ix, err := prepareIndexer(ctx, tx)
		if err != nil {
			return err
		}

		defer ix.Close()

		stats, err = ix.Sync(ctx, entries)

		return err
	})
	if err != nil {
		return nil, fmt.Errorf("import: %w", err)
	}

	s.log.Info().Str("object", obj.ID).Int("blocks", len(nodes)).Int("index_writes", stats.Writes()).Msg("object imported")

	return s.GetObject(ctx, obj.ID)
}

// checkExport validates an export document and converts its blocks to rows.
func (s *Store) checkExport(doc *Export) ([]patch.Node, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is nil", ErrInvalidExport)
	}

	if doc.Version != ExportVersion {
		return nil, fmt.Errorf("%w: version %d, want %d", ErrInvalidExport, doc.Version, ExportVersion)
	}

	_, err := parseObjectID(doc.Object.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}

	_, err = ParseObjectType(string(doc.Object.Type))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}

	if doc.Object.Revision < 0 {
		return nil, fmt.Errorf("%w: negative revision", ErrInvalidExport)
	}

	now := s.now()
	if doc.Object.CreatedAt.IsZero() {
		doc.Object.CreatedAt = now
	}

	if doc.Object.UpdatedAt.IsZero() {
		doc.Object.UpdatedAt = doc.Object.CreatedAt
	}

	ids := make(map[string]bool, len(doc.Blocks))
	for _, b := range doc.Blocks {
		ids[b.ID] = true
	}

	nodes := make([]patch.Node, 0, len(doc.Blocks))

	for _, b := range doc.Blocks {
		if !patch.ValidBlockID(b.ID) {
			return nil, fmt.Errorf("%w: malformed block id %q", ErrInvalidExport, b.ID)
		}

		if b.ParentID != "" && !ids[b.ParentID] {
			return nil, fmt.Errorf("%w: block %s: parent %s not in export", ErrInvalidExport, b.ID, b.ParentID)
		}

		err = s.schema.Check(b.Type, b.Content)
		if err != nil {
			return nil, fmt.Errorf("%w: block %s: %w", ErrInvalidExport, b.ID, err)
		}

		n := patch.Node{
			ID:        b.ID,
			ParentID:  b.ParentID,
			Type:      b.Type,
			Content:   b.Content,
			OrderKey:  b.OrderKey,
			CreatedAt: b.CreatedAt.UnixMilli(),
			UpdatedAt: b.UpdatedAt.UnixMilli(),
		}

		if b.CreatedAt.IsZero() {
			n.CreatedAt = now.UnixMilli()
		}

		if b.UpdatedAt.IsZero() {
			n.UpdatedAt = n.CreatedAt
		}

		if b.DeletedAt != nil {
			n.DeletedAt = b.DeletedAt.UnixMilli()
		}

		nodes = append(nodes, n)
	}

	proj, err := patch.NewProjection(nodes, s.keys, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidExport, err)
	}

	parents := map[string]bool{"": true}

	for _, n := range nodes {
		if proj.IsAncestor(n.ID, n.ID) {
			return nil, fmt.Errorf("%w: block %s is its own ancestor", ErrInvalidExport, n.ID)
		}

		parents[n.ID] = true
	}

	for parent := range parents {
		kids := proj.Children(parent)
		for i := 1; i < len(kids); i++ {
			if kids[i-1].OrderKey == kids[i].OrderKey {
				return nil, fmt.Errorf("%w: siblings %s and %s share order key %q",
					ErrInvalidExport, kids[i-1].ID, kids[i].ID, kids[i].OrderKey)
			}
		}
	}

	return nodes, nil
}
