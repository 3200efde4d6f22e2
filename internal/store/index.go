package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"

	"github.com/calvinalkan/typenote/internal/block"
)

// indexEntry is one block the maintainer brings in line with its content.
// Unreachable entries lose all their index rows.
type indexEntry struct {
	BlockID   string
	ObjectID  string
	Content   block.Content
	Reachable bool
}

// indexer holds prepared statements for keeping block_search, block_terms
// and block_refs in step with block content. Every write is a delta against
// what is already stored, so running it over unchanged blocks writes nothing.
type indexer struct {
	selectText   *sql.Stmt
	upsertText   *sql.Stmt
	deleteText   *sql.Stmt
	selectTerms  *sql.Stmt
	insertTerm   *sql.Stmt
	deleteTerm   *sql.Stmt
	deleteTerms  *sql.Stmt
	selectRefs   *sql.Stmt
	insertRef    *sql.Stmt
	deleteRef    *sql.Stmt
	deleteRefsOf *sql.Stmt
}

// prepareIndexer creates the maintainer's statements within a transaction.
func prepareIndexer(ctx context.Context, tx *sql.Tx) (*indexer, error) {
	ix := &indexer{}
	success := false

	defer func() {
		if !success {
			ix.Close()
		}
	}()

	stmts := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&ix.selectText, "SELECT object_id, text FROM block_search WHERE block_id = ?"},
		{&ix.upsertText, "INSERT OR REPLACE INTO block_search (block_id, object_id, text) VALUES (?, ?, ?)"},
		{&ix.deleteText, "DELETE FROM block_search WHERE block_id = ?"},
		{&ix.selectTerms, "SELECT term FROM block_terms WHERE block_id = ?"},
		{&ix.insertTerm, "INSERT INTO block_terms (term, block_id) VALUES (?, ?)"},
		{&ix.deleteTerm, "DELETE FROM block_terms WHERE term = ? AND block_id = ?"},
		{&ix.deleteTerms, "DELETE FROM block_terms WHERE block_id = ?"},
		{&ix.selectRefs, "SELECT source_object_id, target_object_id, target_block_id FROM block_refs WHERE source_block_id = ?"},
		{&ix.insertRef, `INSERT OR REPLACE INTO block_refs (source_block_id, source_object_id, target_object_id, target_block_id)
			VALUES (?, ?, ?, ?)`},
		{&ix.deleteRef, "DELETE FROM block_refs WHERE source_block_id = ? AND target_object_id = ? AND target_block_id = ?"},
		{&ix.deleteRefsOf, "DELETE FROM block_refs WHERE source_block_id = ?"},
	}

	for _, st := range stmts {
		stmt, err := tx.PrepareContext(ctx, st.query)
		if err != nil {
			return nil, fmt.Errorf("prepare %q: %w", st.query, err)
		}

		*st.dst = stmt
	}

	success = true

	return ix, nil
}

// Close releases the prepared statements.
func (ix *indexer) Close() {
	for _, stmt := range []*sql.Stmt{
		ix.selectText, ix.upsertText, ix.deleteText,
		ix.selectTerms, ix.insertTerm, ix.deleteTerm, ix.deleteTerms,
		ix.selectRefs, ix.insertRef, ix.deleteRef, ix.deleteRefsOf,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// Sync brings the index rows of every entry up to date.
func (ix *indexer) Sync(ctx context.Context, entries []indexEntry) (IndexStats, error) {
	var total IndexStats

	for i := range entries {
		stats, err := ix.sync(ctx, &entries[i])
		if err != nil {
			return total, fmt.Errorf("index block %s: %w", entries[i].BlockID, err)
		}

		total.add(stats)
	}

	return total, nil
}

func (ix *indexer) sync(ctx context.Context, e *indexEntry) (IndexStats, error) {
	var stats IndexStats

	if !e.Reachable {
		return ix.drop(ctx, e.BlockID)
	}

	text := e.Content.PlainText()

	var storedObject, storedText string

	err := ix.selectText.QueryRowContext(ctx, e.BlockID).Scan(&storedObject, &storedText)

	switch {
	case errors.Is(err, sql.ErrNoRows), err == nil && (storedText != text || storedObject != e.ObjectID):
		_, err = ix.upsertText.ExecContext(ctx, e.BlockID, e.ObjectID, text)
		if err != nil {
			return stats, fmt.Errorf("write text: %w", err)
		}

		stats.SearchWritten++
	case err != nil:
		return stats, fmt.Errorf("read text: %w", err)
	}

	termStats, err := ix.syncTerms(ctx, e.BlockID, block.Terms(text))
	if err != nil {
		return stats, err
	}

	stats.add(termStats)

	refStats, err := ix.syncRefs(ctx, e)
	if err != nil {
		return stats, err
	}

	stats.add(refStats)

	return stats, nil
}

func (ix *indexer) syncTerms(ctx context.Context, blockID string, want []string) (IndexStats, error) {
	var stats IndexStats

	have, err := queryStrings(ctx, ix.selectTerms, blockID)
	if err != nil {
		return stats, fmt.Errorf("read terms: %w", err)
	}

	for _, term := range have {
		if _, keep := slices.BinarySearch(want, term); keep {
			continue
		}

		_, err = ix.deleteTerm.ExecContext(ctx, term, blockID)
		if err != nil {
			return stats, fmt.Errorf("delete term: %w", err)
		}

		stats.TermsRemoved++
	}

	slices.Sort(have)

	for _, term := range want {
		if _, exists := slices.BinarySearch(have, term); exists {
			continue
		}

		_, err = ix.insertTerm.ExecContext(ctx, term, blockID)
		if err != nil {
			return stats, fmt.Errorf("insert term: %w", err)
		}

		stats.TermsAdded++
	}

	return stats, nil
}

type refRow struct {
	sourceObject string
	ref          block.Ref
}

func (ix *indexer) syncRefs(ctx context.Context, e *indexEntry) (IndexStats, error) {
	var stats IndexStats

	rows, err := ix.selectRefs.QueryContext(ctx, e.BlockID)
	if err != nil {
		return stats, fmt.Errorf("read refs: %w", err)
	}

	var have []refRow

	for rows.Next() {
		var r refRow

		err = rows.Scan(&r.sourceObject, &r.ref.ObjectID, &r.ref.BlockID)
		if err != nil {
			_ = rows.Close()

			return stats, fmt.Errorf("read refs: scan: %w", err)
		}

		have = append(have, r)
	}

	_ = rows.Close()

	err = rows.Err()
	if err != nil {
		return stats, fmt.Errorf("read refs: rows: %w", err)
	}

	want := e.Content.Refs()

	for _, r := range have {
		if r.sourceObject == e.ObjectID && slices.Contains(want, r.ref) {
			continue
		}

		_, err = ix.deleteRef.ExecContext(ctx, e.BlockID, r.ref.ObjectID, r.ref.BlockID)
		if err != nil {
			return stats, fmt.Errorf("delete ref: %w", err)
		}

		stats.RefsRemoved++
	}

	for _, ref := range want {
		stored := slices.ContainsFunc(have, func(r refRow) bool {
			return r.ref == ref && r.sourceObject == e.ObjectID
		})
		if stored {
			continue
		}

		_, err = ix.insertRef.ExecContext(ctx, e.BlockID, e.ObjectID, ref.ObjectID, ref.BlockID)
		if err != nil {
			return stats, fmt.Errorf("insert ref: %w", err)
		}

		stats.RefsAdded++
	}

	return stats, nil
}

// drop removes every index row of one block.
func (ix *indexer) drop(ctx context.Context, blockID string) (IndexStats, error) {
	var stats IndexStats

	res, err := ix.deleteText.ExecContext(ctx, blockID)
	if err != nil {
		return stats, fmt.Errorf("delete text: %w", err)
	}

	stats.SearchRemoved = rowsAffected(res)

	res, err = ix.deleteTerms.ExecContext(ctx, blockID)
	if err != nil {
		return stats, fmt.Errorf("delete terms: %w", err)
	}

	stats.TermsRemoved = rowsAffected(res)

	res, err = ix.deleteRefsOf.ExecContext(ctx, blockID)
	if err != nil {
		return stats, fmt.Errorf("delete refs: %w", err)
	}

	stats.RefsRemoved = rowsAffected(res)

	return stats, nil
}

func queryStrings(ctx context.Context, stmt *sql.Stmt, args ...any) ([]string, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}

	defer func() { _ = rows.Close() }()

	var out []string

	for rows.Next() {
		var s string

		err = rows.Scan(&s)
		if err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, rows.Err()
}
