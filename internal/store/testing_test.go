package store_test

import (
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/calvinalkan/typenote/internal/block"
	"github.com/calvinalkan/typenote/internal/patch"
	"github.com/calvinalkan/typenote/internal/store"
)

// sequentialIDs hands out G001, G002, ... so generated ids are predictable.
func sequentialIDs() store.IDGenerator {
	var n atomic.Int64

	return store.IDGeneratorFunc(func() string {
		return fmt.Sprintf("G%03d", n.Add(1))
	})
}

func openStore(t *testing.T, opts ...store.Option) *store.Store {
	t.Helper()

	s, err := store.Open(t.Context(), filepath.Join(t.TempDir(), "typenote.db"), opts...)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func newObject(t *testing.T, s *store.Store, title string) *store.Object {
	t.Helper()

	obj, err := s.CreateObject(t.Context(), store.ObjectNote, title)
	if err != nil {
		t.Fatalf("create object: %v", err)
	}

	return obj
}

func mustApply(t *testing.T, s *store.Store, objectID string, base int64, ops ...patch.Operation) *store.PatchResult {
	t.Helper()

	res, err := s.ApplyBlockPatch(t.Context(), patch.Patch{ObjectID: objectID, BaseRevision: base, Ops: ops})
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}

	return res
}

func mustFail(t *testing.T, s *store.Store, objectID string, base int64, ops ...patch.Operation) *patch.Error {
	t.Helper()

	res, err := s.ApplyBlockPatch(t.Context(), patch.Patch{ObjectID: objectID, BaseRevision: base, Ops: ops})
	if err == nil {
		t.Fatalf("apply patch: expected error, got result %+v", res)
	}

	var pErr *patch.Error
	if !errors.As(err, &pErr) {
		t.Fatalf("apply patch: error %T is not *patch.Error: %v", err, err)
	}

	return pErr
}

func para(text string) block.Content {
	return block.Content{Text: []block.Run{{Text: text}}}
}

func mention(text, objectID, blockID string) block.Content {
	return block.Content{Text: []block.Run{
		{Text: text + " "},
		{Text: "link", Marks: []block.Mark{{Type: block.MarkRef, ObjectID: objectID, BlockID: blockID}}},
	}}
}

func insertPara(id, text, parent string, anchor patch.Anchor) patch.Operation {
	return patch.Insert(id, block.TypeParagraph, para(text), parent, anchor)
}

// outline renders the reachable tree as "id" lines indented two spaces per level.
func outline(t *testing.T, s *store.Store, objectID string) []string {
	t.Helper()

	tree, err := s.GetTree(t.Context(), objectID)
	if err != nil {
		t.Fatalf("get tree: %v", err)
	}

	lines := []string{}

	tree.Walk(func(b *store.Block, depth int) {
		lines = append(lines, strings.Repeat("  ", depth)+b.ID)
	})

	return lines
}

func searchIDs(t *testing.T, s *store.Store, query string, filters store.SearchFilters) []string {
	t.Helper()

	matches, err := s.SearchBlocks(t.Context(), query, filters)
	if err != nil {
		t.Fatalf("search %q: %v", query, err)
	}

	ids := []string{}
	for _, m := range matches {
		ids = append(ids, m.BlockID)
	}

	return ids
}

func backlinkSources(t *testing.T, s *store.Store, objectID string) []string {
	t.Helper()

	links, err := s.GetBacklinks(t.Context(), objectID)
	if err != nil {
		t.Fatalf("backlinks: %v", err)
	}

	ids := []string{}
	for _, l := range links {
		ids = append(ids, l.SourceBlockID)
	}

	return ids
}

func rawDB(t *testing.T, s *store.Store) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", s.Path()+"?_busy_timeout=5000")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var count int

	err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}

	return count
}

var allTables = []string{"objects", "blocks", "block_search", "block_terms", "block_refs"}

// dumpTables renders every row of every table in a stable order, for
// byte-for-byte before/after comparisons.
func dumpTables(t *testing.T, db *sql.DB) string {
	t.Helper()

	var out strings.Builder

	for _, table := range allTables {
		rows, err := db.Query("SELECT * FROM " + table + " ORDER BY 1, 2")
		if err != nil {
			t.Fatalf("dump %s: %v", table, err)
		}

		cols, err := rows.Columns()
		if err != nil {
			t.Fatalf("dump %s: columns: %v", table, err)
		}

		fmt.Fprintf(&out, "== %s %v\n", table, cols)

		for rows.Next() {
			values := make([]any, len(cols))
			ptrs := make([]any, len(cols))

			for i := range values {
				ptrs[i] = &values[i]
			}

			err = rows.Scan(ptrs...)
			if err != nil {
				t.Fatalf("dump %s: scan: %v", table, err)
			}

			for i, v := range values {
				if b, ok := v.([]byte); ok {
					values[i] = string(b)
				}
			}

			fmt.Fprintf(&out, "%v\n", values)
		}

		err = rows.Err()
		_ = rows.Close()

		if err != nil {
			t.Fatalf("dump %s: rows: %v", table, err)
		}
	}

	return out.String()
}

func requireUniqueSiblingKeys(t *testing.T, db *sql.DB, objectID string) {
	t.Helper()

	var dupes int

	err := db.QueryRow(`
		SELECT COUNT(*) FROM (
			SELECT COALESCE(parent_id, ''), order_key FROM blocks
			WHERE object_id = ? AND deleted_at IS NULL
			GROUP BY COALESCE(parent_id, ''), order_key
			HAVING COUNT(*) > 1
		)`, objectID).Scan(&dupes)
	if err != nil {
		t.Fatalf("check sibling keys: %v", err)
	}

	if dupes != 0 {
		t.Fatalf("found %d duplicated sibling order keys", dupes)
	}
}
