package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/calvinalkan/typenote/internal/patch"
)

// ApplyBlockPatch applies p to its object atomically.
//
// The revision check, validation, row writes, index maintenance and the
// revision bump all happen in one immediate transaction: either every
// operation lands and the revision goes up by exactly one, or nothing
// changes. A patch with no operations is accepted without writing anything
// and leaves the revision alone.
//
// Errors are always *patch.Error; match them with errors.Is against
// [patch.ErrValidation], [patch.ErrConflict], [patch.ErrNotFound] and
// [patch.ErrInternal].
func (s *Store) ApplyBlockPatch(ctx context.Context, p patch.Patch) (result *PatchResult, err error) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = patch.Internal(fmt.Errorf("panic: %v", r))
		}

		s.logPatch(p, result, err, time.Since(start))
	}()

	err = s.ready(ctx, "apply patch")
	if err != nil {
		return nil, patch.Internal(err)
	}

	ops := s.assignBlockIDs(p.Ops)

	var run *patchRun

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var txErr error

		run, txErr = s.project(ctx, tx, p.ObjectID, p.BaseRevision, ops)
		if txErr != nil || len(ops) == 0 {
			return txErr
		}

		return s.persist(ctx, tx, run)
	})
	if err != nil {
		return nil, patch.AsError(err)
	}

	result = &PatchResult{
		ObjectID: p.ObjectID,
		Revision: run.revision,
		Ops:      run.results,
		Index:    run.index,
	}

	if result.Ops == nil {
		result.Ops = []patch.OpResult{}
	}

	return result, nil
}

// ValidateBlockPatch runs p against the current state without writing.
// It returns the placements ApplyBlockPatch would produce.
func (s *Store) ValidateBlockPatch(ctx context.Context, p patch.Patch) (results []patch.OpResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			results = nil
			err = patch.Internal(fmt.Errorf("panic: %v", r))
		}
	}()

	err = s.ready(ctx, "validate patch")
	if err != nil {
		return nil, patch.Internal(err)
	}

	ops := s.assignBlockIDs(p.Ops)

	var run *patchRun

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var txErr error

		run, txErr = s.project(ctx, tx, p.ObjectID, p.BaseRevision, ops)
		if txErr != nil {
			return txErr
		}

		// Roll back: nothing was written, and nothing should be.
		return errDryRun
	})
	if err != nil && !errors.Is(err, errDryRun) {
		return nil, patch.AsError(err)
	}

	if run.results == nil {
		return []patch.OpResult{}, nil
	}

	return run.results, nil
}

var errDryRun = errors.New("dry run")

// patchRun is a validated patch held in memory, ready to persist.
type patchRun struct {
	objectID string
	revision int64
	proj     *patch.Projection
	before   map[string]bool
	results  []patch.OpResult
	index    IndexStats
}

// assignBlockIDs copies ops, filling in ids for inserts that have none.
func (s *Store) assignBlockIDs(ops []patch.Operation) []patch.Operation {
	out := make([]patch.Operation, len(ops))
	copy(out, ops)

	for i := range out {
		if out[i].Op == patch.OpInsert && out[i].BlockID == "" {
			out[i].BlockID = s.ids.NewBlockID()
		}
	}

	return out
}

// project checks the revision, loads the object's blocks and runs every
// operation against the in-memory projection.
func (s *Store) project(ctx context.Context, tx *sql.Tx, objectID string, base int64, ops []patch.Operation) (*patchRun, error) {
	obj, err := loadObject(ctx, tx, objectID)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, patch.NotFound(err)
	}

	if err != nil {
		return nil, patch.Internal(err)
	}

	if obj.Trashed() {
		return nil, patch.NotFound(fmt.Errorf("%w: %s is trashed", ErrObjectNotFound, objectID))
	}

	if obj.Revision != base {
		return nil, patch.Conflict(objectID, base, obj.Revision)
	}

	run := &patchRun{objectID: objectID, revision: obj.Revision}
	if len(ops) == 0 {
		return run, nil
	}

	nodes, err := loadNodes(ctx, tx, objectID)
	if err != nil {
		return nil, patch.Internal(err)
	}

	run.proj, err = patch.NewProjection(nodes, s.keys, s.nowMillis())
	if err != nil {
		return nil, patch.Internal(fmt.Errorf("object %s: %w", objectID, err))
	}

	foreign, err := foreignBlocks(ctx, tx, objectID, referencedIDs(run.proj, ops))
	if err != nil {
		return nil, patch.Internal(err)
	}

	run.before = run.proj.ReachableSet()

	validator := &patch.Validator{Schema: s.schema, Foreign: foreign}

	results, pErr := patch.Run(run.proj, ops, validator)
	if pErr != nil {
		return nil, pErr
	}

	run.results = results

	return run, nil
}

// referencedIDs lists ids named by ops that the projection does not know.
func referencedIDs(p *patch.Projection, ops []patch.Operation) []string {
	seen := make(map[string]bool)

	var ids []string

	add := func(id string) {
		if id == "" || seen[id] {
			return
		}

		seen[id] = true

		if _, ok := p.Node(id); !ok {
			ids = append(ids, id)
		}
	}

	for _, op := range ops {
		add(op.BlockID)

		if op.Placement != nil {
			add(op.Placement.ParentID)
			add(op.Placement.Anchor.BlockID)
		}
	}

	return ids
}

// persist writes the changed rows, maintains the derived indexes and bumps
// the revision.
func (s *Store) persist(ctx context.Context, tx *sql.Tx, run *patchRun) error {
	changes := run.proj.Changes()

	for i := range changes {
		c := &changes[i]

		err := writeNode(ctx, tx, run.objectID, &c.Node, c.Change.Has(patch.ChangeCreated))
		if err != nil {
			return patch.Internal(err)
		}
	}

	ix, err := prepareIndexer(ctx, tx)
	if err != nil {
		return patch.Internal(err)
	}

	defer ix.Close()

	run.index, err = ix.Sync(ctx, indexEntries(run, changes))
	if err != nil {
		return patch.Internal(err)
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE objects SET revision = revision + 1, updated_at = ?
		WHERE id = ? AND revision = ?
		RETURNING revision`, s.nowMillis(), run.objectID, run.revision).Scan(&run.revision)
	if err != nil {
		return patch.Internal(fmt.Errorf("bump revision: %w", err))
	}

	if s.beforeCommit != nil {
		err = s.beforeCommit(ctx, tx)
		if err != nil {
			return patch.Internal(err)
		}
	}

	return nil
}

// indexEntries picks the blocks whose index rows may be stale: created or
// edited blocks, and every block whose reachability flipped.
func indexEntries(run *patchRun, changes []patch.Changed) []indexEntry {
	after := run.proj.ReachableSet()
	picked := make(map[string]bool)

	var entries []indexEntry

	add := func(id string) {
		if picked[id] {
			return
		}

		picked[id] = true
		n, _ := run.proj.Node(id)
		entries = append(entries, indexEntry{
			BlockID:   id,
			ObjectID:  run.objectID,
			Content:   n.Content,
			Reachable: after[id],
		})
	}

	for _, c := range changes {
		if c.Change.Has(patch.ChangeCreated) || c.Change.Has(patch.ChangeContent) {
			add(c.Node.ID)
		}
	}

	for id := range run.before {
		if !after[id] {
			add(id)
		}
	}

	for id := range after {
		if !run.before[id] {
			add(id)
		}
	}

	return entries
}

func (s *Store) logPatch(p patch.Patch, result *PatchResult, err error, took time.Duration) {
	if err == nil {
		s.log.Debug().
			Str("object", p.ObjectID).
			Int("ops", len(p.Ops)).
			Int64("revision", result.Revision).
			Int("index_writes", result.Index.Writes()).
			Dur("took", took).
			Msg("patch applied")

		return
	}

	pErr := patch.AsError(err)

	event := s.log.Info()
	if pErr.Kind == patch.KindInternal {
		event = s.log.Error()
	}

	event.
		Str("object", p.ObjectID).
		Int("ops", len(p.Ops)).
		Int64("base_revision", p.BaseRevision).
		Str("kind", string(pErr.Kind)).
		Int("op_index", pErr.OpIndex).
		Str("reason", string(pErr.Reason)).
		Err(pErr.Err).
		Msg("patch rejected")
}
