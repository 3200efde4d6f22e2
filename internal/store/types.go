package store

import (
	"time"

	"github.com/calvinalkan/typenote/internal/block"
	"github.com/calvinalkan/typenote/internal/patch"
)

// ObjectType is the kind of a top-level object.
type ObjectType string

// Object types.
const (
	ObjectNote      ObjectType = "note"
	ObjectPage      ObjectType = "page"
	ObjectPerson    ObjectType = "person"
	ObjectEvent     ObjectType = "event"
	ObjectTask      ObjectType = "task"
	ObjectDailyNote ObjectType = "daily_note"
)

// ObjectTypes lists every supported object type.
var ObjectTypes = []ObjectType{ObjectNote, ObjectPage, ObjectPerson, ObjectEvent, ObjectTask, ObjectDailyNote}

// Object is a top-level document owning one block tree.
type Object struct {
	ID        string     `json:"id"`                   // ID is a UUIDv7.
	Type      ObjectType `json:"type"`                 // Type is one of [ObjectTypes].
	Title     string     `json:"title"`                // Title is free text.
	Revision  int64      `json:"revision"`             // Revision goes up by one per applied patch.
	CreatedAt time.Time  `json:"created_at"`           // CreatedAt is UTC.
	UpdatedAt time.Time  `json:"updated_at"`           // UpdatedAt is UTC.
	DeletedAt *time.Time `json:"deleted_at,omitempty"` // DeletedAt is set once the object is trashed.
}

// Trashed reports whether the object was moved to the trash.
func (o *Object) Trashed() bool { return o.DeletedAt != nil }

// ListOptions filters ListObjects. Zero values mean "no filter".
type ListOptions struct {
	Type           ObjectType // Type filters by object type when non-empty.
	IncludeTrashed bool       // IncludeTrashed also returns trashed objects.
	Limit          int        // Limit caps the number of rows when > 0.
}

// Block is one reachable block in a [Tree].
type Block struct {
	ID        string        `json:"id"`
	ParentID  string        `json:"parent_id,omitempty"`
	Type      block.Type    `json:"type"`
	Content   block.Content `json:"content"`
	OrderKey  string        `json:"order_key"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Children  []*Block      `json:"children,omitempty"`
}

// Tree is the reachable block tree of one object, roots and children in
// sibling order.
type Tree struct {
	Object Object   `json:"object"`
	Blocks []*Block `json:"blocks"`
}

// Walk calls fn for every block depth-first in document order.
func (t *Tree) Walk(fn func(b *Block, depth int)) {
	var walk func(list []*Block, depth int)

	walk = func(list []*Block, depth int) {
		for _, b := range list {
			fn(b, depth)
			walk(b.Children, depth+1)
		}
	}

	walk(t.Blocks, 0)
}

// PatchResult is returned by a successful ApplyBlockPatch.
type PatchResult struct {
	ObjectID string           `json:"object_id"`
	Revision int64            `json:"revision"` // Revision is the object revision after the patch.
	Ops      []patch.OpResult `json:"ops"`      // Ops has one entry per operation, in input order.
	Index    IndexStats       `json:"index"`    // Index counts derived index writes.
}

// SearchFilters narrows SearchBlocks. Zero values mean "no filter".
type SearchFilters struct {
	ObjectID   string     // ObjectID limits matches to one object.
	ObjectType ObjectType // ObjectType limits matches to objects of one type.
	BlockType  block.Type // BlockType limits matches to one block type.
	Limit      int        // Limit caps results; 0 uses DefaultSearchLimit.
}

// SearchMatch is one block whose text contains every query term.
type SearchMatch struct {
	BlockID     string     `json:"block_id"`
	BlockType   block.Type `json:"block_type"`
	ObjectID    string     `json:"object_id"`
	ObjectTitle string     `json:"object_title"`
	ObjectType  ObjectType `json:"object_type"`
	Text        string     `json:"text"`
}

// Backlink is one reference from a reachable block to an object.
type Backlink struct {
	SourceBlockID     string `json:"source_block_id"`
	SourceObjectID    string `json:"source_object_id"`
	SourceObjectTitle string `json:"source_object_title"`
	TargetBlockID     string `json:"target_block_id,omitempty"` // TargetBlockID is empty for whole-object references.
	Text              string `json:"text"`                      // Text is the plain text of the source block.
}

// IndexStats counts rows written to or removed from the derived indexes.
type IndexStats struct {
	SearchWritten int `json:"search_written"`
	SearchRemoved int `json:"search_removed"`
	TermsAdded    int `json:"terms_added"`
	TermsRemoved  int `json:"terms_removed"`
	RefsAdded     int `json:"refs_added"`
	RefsRemoved   int `json:"refs_removed"`
}

// Writes is the total number of index rows touched.
func (s IndexStats) Writes() int {
	return s.SearchWritten + s.SearchRemoved + s.TermsAdded + s.TermsRemoved + s.RefsAdded + s.RefsRemoved
}

func (s *IndexStats) add(o IndexStats) {
	s.SearchWritten += o.SearchWritten
	s.SearchRemoved += o.SearchRemoved
	s.TermsAdded += o.TermsAdded
	s.TermsRemoved += o.TermsRemoved
	s.RefsAdded += o.RefsAdded
	s.RefsRemoved += o.RefsRemoved
}
