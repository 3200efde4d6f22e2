// Package patch defines the structural edit language for block trees and the
// in-memory projection used to validate and place a batch of edits before
// the store persists them.
package patch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/calvinalkan/typenote/internal/block"
)

// OpKind names an operation.
type OpKind string

// Operation kinds.
const (
	OpInsert  OpKind = "insert"
	OpUpdate  OpKind = "update"
	OpMove    OpKind = "move"
	OpDelete  OpKind = "delete"
	OpRestore OpKind = "restore"
)

// AnchorKind says where in a sibling list a block is placed.
type AnchorKind string

// Anchor kinds.
const (
	AnchorStart  AnchorKind = "start"
	AnchorEnd    AnchorKind = "end"
	AnchorBefore AnchorKind = "before"
	AnchorAfter  AnchorKind = "after"
)

// Anchor is a sibling-relative position. BlockID is set for before/after.
// It encodes in JSON as "start", "end", "before:<id>" or "after:<id>".
type Anchor struct {
	Kind    AnchorKind
	BlockID string
}

// Start places a block first among its siblings.
func Start() Anchor { return Anchor{Kind: AnchorStart} }

// End places a block last among its siblings.
func End() Anchor { return Anchor{Kind: AnchorEnd} }

// Before places a block immediately before sibling id.
func Before(id string) Anchor { return Anchor{Kind: AnchorBefore, BlockID: id} }

// After places a block immediately after sibling id.
func After(id string) Anchor { return Anchor{Kind: AnchorAfter, BlockID: id} }

// ParseAnchor parses the string form of an anchor.
func ParseAnchor(s string) (Anchor, error) {
	switch s {
	case string(AnchorStart):
		return Start(), nil
	case string(AnchorEnd), "":
		return End(), nil
	}

	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Anchor{}, fmt.Errorf("invalid anchor %q", s)
	}

	switch AnchorKind(kind) {
	case AnchorBefore:
		return Before(id), nil
	case AnchorAfter:
		return After(id), nil
	case AnchorStart, AnchorEnd:
	}

	return Anchor{}, fmt.Errorf("invalid anchor %q", s)
}

func (a Anchor) String() string {
	if a.Kind == AnchorBefore || a.Kind == AnchorAfter {
		return string(a.Kind) + ":" + a.BlockID
	}

	return string(a.Kind)
}

// MarshalJSON implements json.Marshaler.
func (a Anchor) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Anchor) UnmarshalJSON(data []byte) error {
	var s string

	err := json.Unmarshal(data, &s)
	if err != nil {
		return fmt.Errorf("anchor: %w", err)
	}

	parsed, err := ParseAnchor(s)
	if err != nil {
		return err
	}

	*a = parsed

	return nil
}

// Placement positions a block: under ParentID (empty for root level) at Anchor.
type Placement struct {
	ParentID string `json:"parent_id,omitempty"`
	Anchor   Anchor `json:"anchor"`
}

// Operation is one structural edit. Which fields are used depends on Op:
//
//   - insert:  BlockID (optional, generated when empty), Type, Content, Placement
//   - update:  BlockID, Patch
//   - move:    BlockID, Placement
//   - delete:  BlockID
//   - restore: BlockID
type Operation struct {
	Op        OpKind              `json:"op"`
	BlockID   string              `json:"block_id,omitempty"`
	Type      block.Type          `json:"type,omitempty"`
	Content   *block.Content      `json:"content,omitempty"`
	Patch     *block.ContentPatch `json:"patch,omitempty"`
	Placement *Placement          `json:"placement,omitempty"`
}

// Insert builds an insert operation.
func Insert(id string, typ block.Type, content block.Content, parentID string, anchor Anchor) Operation {
	return Operation{
		Op:        OpInsert,
		BlockID:   id,
		Type:      typ,
		Content:   &content,
		Placement: &Placement{ParentID: parentID, Anchor: anchor},
	}
}

// Update builds an update operation.
func Update(id string, p block.ContentPatch) Operation {
	return Operation{Op: OpUpdate, BlockID: id, Patch: &p}
}

// SetText builds an update that replaces the text of a block with one plain run.
func SetText(id string, runs ...block.Run) Operation {
	return Update(id, block.ContentPatch{Text: &runs})
}

// Move builds a move operation.
func Move(id string, parentID string, anchor Anchor) Operation {
	return Operation{Op: OpMove, BlockID: id, Placement: &Placement{ParentID: parentID, Anchor: anchor}}
}

// Delete builds a delete operation.
func Delete(id string) Operation {
	return Operation{Op: OpDelete, BlockID: id}
}

// Restore builds a restore operation.
func Restore(id string) Operation {
	return Operation{Op: OpRestore, BlockID: id}
}

// Patch is an ordered batch of operations against one object.
// BaseRevision is the object revision the client last read; the patch is
// rejected with a conflict when the stored revision differs.
type Patch struct {
	ObjectID     string      `json:"object_id"`
	BaseRevision int64       `json:"base_revision"`
	Ops          []Operation `json:"ops"`
}

// OpResult reports where an operation's block ended up.
// OrderKey is the block's key after the whole patch applied.
type OpResult struct {
	Index    int    `json:"index"`
	Op       OpKind `json:"op"`
	BlockID  string `json:"block_id"`
	ParentID string `json:"parent_id,omitempty"`
	OrderKey string `json:"order_key"`
}
