package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/calvinalkan/typenote/internal/patch"
)

// Reindex brings the derived search and reference rows in line with the
// block rows of one object, or of every object when objectID is empty.
//
// The index is treated as disposable: each block is re-derived from its
// stored content and reachability, and rows whose block no longer exists are
// removed. Only deltas are written, so running Reindex on an index that is
// already correct writes nothing; the returned stats say what changed.
func (s *Store) Reindex(ctx context.Context, objectID string) (IndexStats, error) {
	var stats IndexStats

	err := s.ready(ctx, "reindex")
	if err != nil {
		return stats, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		objects, err := reindexTargets(ctx, tx, objectID)
		if err != nil {
			return err
		}

		ix, err := prepareIndexer(ctx, tx)
		if err != nil {
			return err
		}

		defer ix.Close()

		for _, obj := range objects {
			entries, err := s.objectEntries(ctx, tx, obj)
			if err != nil {
				return fmt.Errorf("object %s: %w", obj.ID, err)
			}

			objStats, err := ix.Sync(ctx, entries)
			if err != nil {
				return fmt.Errorf("object %s: %w", obj.ID, err)
			}

			stats.add(objStats)
		}

		orphanStats, err := dropOrphans(ctx, tx)
		if err != nil {
			return err
		}

		stats.add(orphanStats)

		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("reindex: %w", err)
	}

	s.log.Info().Str("object", objectID).Int("index_writes", stats.Writes()).Msg("reindex finished")

	return stats, nil
}

func reindexTargets(ctx context.Context, tx *sql.Tx, objectID string) ([]*Object, error) {
	if objectID != "" {
		obj, err := loadObject(ctx, tx, objectID)
		if err != nil {
			return nil, err
		}

		return []*Object{obj}, nil
	}

	rows, err := tx.QueryContext(ctx, "SELECT "+objectColumns+" FROM objects ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	defer func() { _ = rows.Close() }()

	var objects []*Object

	for rows.Next() {
		obj, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("list objects: scan: %w", err)
		}

		objects = append(objects, obj)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("list objects: rows: %w", err)
	}

	return objects, nil
}

// objectEntries derives one index entry per block row of obj. Blocks of a
// trashed object are all unreachable.
func (s *Store) objectEntries(ctx context.Context, tx *sql.Tx, obj *Object) ([]indexEntry, error) {
	nodes, err := loadNodes(ctx, tx, obj.ID)
	if err != nil {
		return nil, err
	}

	reachable := map[string]bool{}

	if !obj.Trashed() {
		proj, err := patch.NewProjection(nodes, s.keys, 0)
		if err != nil {
			return nil, err
		}

		reachable = proj.ReachableSet()
	}

	entries := make([]indexEntry, 0, len(nodes))

	for _, n := range nodes {
		entries = append(entries, indexEntry{
			BlockID:   n.ID,
			ObjectID:  obj.ID,
			Content:   n.Content,
			Reachable: reachable[n.ID],
		})
	}

	return entries, nil
}

// dropOrphans removes index rows whose block row is gone.
func dropOrphans(ctx context.Context, tx *sql.Tx) (IndexStats, error) {
	var stats IndexStats

	res, err := tx.ExecContext(ctx, "DELETE FROM block_search WHERE block_id NOT IN (SELECT id FROM blocks)")
	if err != nil {
		return stats, fmt.Errorf("drop orphan search rows: %w", err)
	}

	stats.SearchRemoved = rowsAffected(res)

	res, err = tx.ExecContext(ctx, "DELETE FROM block_terms WHERE block_id NOT IN (SELECT block_id FROM block_search)")
	if err != nil {
		return stats, fmt.Errorf("drop orphan terms: %w", err)
	}

	stats.TermsRemoved = rowsAffected(res)

	res, err = tx.ExecContext(ctx, "DELETE FROM block_refs WHERE source_block_id NOT IN (SELECT block_id FROM block_search)")
	if err != nil {
		return stats, fmt.Errorf("drop orphan refs: %w", err)
	}

	stats.RefsRemoved = rowsAffected(res)

	return stats, nil
}
