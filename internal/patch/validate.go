package patch

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/calvinalkan/typenote/internal/block"
)

var blockIDPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{1,64}$`)

// ValidBlockID reports whether id is an acceptable caller-supplied block id.
func ValidBlockID(id string) bool {
	return blockIDPattern.MatchString(id)
}

// Validator checks operations against a [Projection].
//
// Checks run in a fixed order and the first failure wins: shape of the
// operation, existence and reachability of every referenced block, cycles,
// content against the block type, then anchor siblinghood.
type Validator struct {
	Schema block.SchemaResolver

	// Foreign maps block ids the patch references that belong to other
	// objects to their object id.
	Foreign map[string]string
}

// Check validates op (the i-th operation) against p. p must reflect all
// operations before i.
func (v *Validator) Check(i int, op Operation, p *Projection) *Error {
	err := v.checkShape(i, op)
	if err != nil {
		return err
	}

	err = v.checkRefs(i, op, p)
	if err != nil {
		return err
	}

	if op.Op == OpMove {
		parent := op.Placement.ParentID
		if parent == op.BlockID || (parent != "" && p.IsAncestor(op.BlockID, parent)) {
			return Invalid(i, ReasonCycle, op.BlockID, fmt.Errorf("cannot move under %s", parent))
		}
	}

	err = v.checkContent(i, op, p)
	if err != nil {
		return err
	}

	return v.checkAnchor(i, op, p)
}

func (v *Validator) checkShape(i int, op Operation) *Error {
	fail := func(format string, args ...any) *Error {
		return Invalid(i, ReasonInvalidOp, op.BlockID, fmt.Errorf(format, args...))
	}

	switch op.Op {
	case OpInsert, OpUpdate, OpMove, OpDelete, OpRestore:
	default:
		return fail("unknown op %q", op.Op)
	}

	if !ValidBlockID(op.BlockID) {
		return fail("malformed block id %q", op.BlockID)
	}

	wantsPlacement := op.Op == OpInsert || op.Op == OpMove
	if wantsPlacement != (op.Placement != nil) {
		return fail("%s: placement %s", op.Op, presence(wantsPlacement))
	}

	if op.Op == OpInsert && op.Type == "" {
		return fail("insert needs a block type")
	}

	if op.Op != OpInsert && (op.Type != "" || op.Content != nil) {
		return fail("%s takes no type or content", op.Op)
	}

	if (op.Op == OpUpdate) != (op.Patch != nil) {
		return fail("%s: content patch %s", op.Op, presence(op.Op == OpUpdate))
	}

	if op.Placement == nil {
		return nil
	}

	if op.Placement.ParentID != "" && !ValidBlockID(op.Placement.ParentID) {
		return fail("malformed parent id %q", op.Placement.ParentID)
	}

	switch op.Placement.Anchor.Kind {
	case AnchorStart, AnchorEnd:
		if op.Placement.Anchor.BlockID != "" {
			return fail("anchor %s takes no block id", op.Placement.Anchor.Kind)
		}
	case AnchorBefore, AnchorAfter:
		if !ValidBlockID(op.Placement.Anchor.BlockID) {
			return fail("malformed anchor block id %q", op.Placement.Anchor.BlockID)
		}
	default:
		return fail("unknown anchor %q", op.Placement.Anchor.Kind)
	}

	return nil
}

func presence(required bool) string {
	if required {
		return "is required"
	}

	return "is not allowed"
}

func (v *Validator) checkRefs(i int, op Operation, p *Projection) *Error {
	switch op.Op {
	case OpInsert:
		if _, exists := p.Node(op.BlockID); exists {
			return Invalid(i, ReasonDuplicateBlockID, op.BlockID, errors.New("block id already used in this object"))
		}

		if obj, exists := v.Foreign[op.BlockID]; exists {
			return Invalid(i, ReasonDuplicateBlockID, op.BlockID, fmt.Errorf("block id already used by object %s", obj))
		}

	case OpRestore:
		n, err := v.lookup(i, op.BlockID, p)
		if err != nil {
			return err
		}

		if !n.Deleted() {
			return Invalid(i, ReasonNotDeleted, op.BlockID, errors.New("block is not deleted"))
		}

		if n.ParentID != "" && !p.Reachable(n.ParentID) {
			return Invalid(i, ReasonParentDeleted, op.BlockID, fmt.Errorf("parent %s is deleted or missing", n.ParentID))
		}

		return nil

	case OpUpdate, OpMove, OpDelete:
		err := v.reachable(i, op.BlockID, p)
		if err != nil {
			return err
		}
	}

	if op.Placement == nil {
		return nil
	}

	if op.Placement.ParentID != "" {
		err := v.reachable(i, op.Placement.ParentID, p)
		if err != nil {
			return err
		}
	}

	if id := op.Placement.Anchor.BlockID; id != "" {
		return v.reachable(i, id, p)
	}

	return nil
}

func (v *Validator) lookup(i int, id string, p *Projection) (*Node, *Error) {
	n, ok := p.Node(id)
	if ok {
		return n, nil
	}

	if obj, foreign := v.Foreign[id]; foreign {
		return nil, Invalid(i, ReasonCrossObject, id, fmt.Errorf("block belongs to object %s", obj))
	}

	return nil, Invalid(i, ReasonUnknownBlock, id, errors.New("no such block"))
}

func (v *Validator) reachable(i int, id string, p *Projection) *Error {
	_, err := v.lookup(i, id, p)
	if err != nil {
		return err
	}

	if !p.Reachable(id) {
		return Invalid(i, ReasonBlockDeleted, id, errors.New("block or an ancestor is deleted"))
	}

	return nil
}

func (v *Validator) checkContent(i int, op Operation, p *Projection) *Error {
	var (
		typ     block.Type
		content block.Content
	)

	switch op.Op {
	case OpInsert:
		typ = op.Type
		if op.Content != nil {
			content = *op.Content
		}
	case OpUpdate:
		n, _ := p.Node(op.BlockID)
		typ = n.Type
		content = n.Content.Apply(*op.Patch)
	default:
		return nil
	}

	err := v.Schema.Check(typ, content)
	if err == nil {
		return nil
	}

	if errors.Is(err, block.ErrUnknownType) {
		return Invalid(i, ReasonUnknownType, op.BlockID, err)
	}

	return Invalid(i, ReasonInvalidContent, op.BlockID, err)
}

func (v *Validator) checkAnchor(i int, op Operation, p *Projection) *Error {
	if op.Placement == nil {
		return nil
	}

	anchorID := op.Placement.Anchor.BlockID
	if anchorID == "" {
		return nil
	}

	if anchorID == op.BlockID {
		return Invalid(i, ReasonAnchorNotSibling, anchorID, errors.New("block cannot be anchored to itself"))
	}

	anchor, _ := p.Node(anchorID)
	if anchor.ParentID != op.Placement.ParentID {
		return Invalid(i, ReasonAnchorNotSibling, anchorID,
			fmt.Errorf("anchor is under %q, placement is under %q", anchor.ParentID, op.Placement.ParentID))
	}

	return nil
}

// Run validates and applies ops to p in order, stopping at the first
// failure. On success it returns one result per operation carrying the
// block's final placement.
func Run(p *Projection, ops []Operation, v *Validator) ([]OpResult, *Error) {
	for i, op := range ops {
		pErr := v.Check(i, op, p)
		if pErr != nil {
			return nil, pErr
		}

		err := p.Apply(op)
		if err != nil {
			return nil, &Error{Kind: KindInternal, OpIndex: i, BlockID: op.BlockID, Err: err}
		}
	}

	results := make([]OpResult, len(ops))

	for i, op := range ops {
		n, _ := p.Node(op.BlockID)
		results[i] = OpResult{
			Index:    i,
			Op:       op.Op,
			BlockID:  op.BlockID,
			ParentID: n.ParentID,
			OrderKey: n.OrderKey,
		}
	}

	return results, nil
}
