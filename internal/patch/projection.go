package patch

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/calvinalkan/typenote/internal/block"
	"github.com/calvinalkan/typenote/internal/orderkey"
)

// Node is one block as the projection sees it. Timestamps are unix
// milliseconds; DeletedAt is zero for live blocks.
type Node struct {
	ID        string
	ParentID  string
	Type      block.Type
	Content   block.Content
	OrderKey  string
	CreatedAt int64
	UpdatedAt int64
	DeletedAt int64
}

// Deleted reports whether the block itself carries a tombstone.
func (n *Node) Deleted() bool { return n.DeletedAt != 0 }

// Change is a bit set describing what happened to a node during a patch.
type Change uint8

// Change bits.
const (
	ChangeCreated Change = 1 << iota
	ChangeContent
	ChangePlacement
	ChangeDeleted
	ChangeRestored
)

// Has reports whether all bits of c2 are set.
func (c Change) Has(c2 Change) bool { return c&c2 == c2 }

// Changed is a node touched by the patch, in its final state.
type Changed struct {
	Node   Node
	Change Change
}

// Projection is the in-memory tree of one object's blocks (live and
// tombstoned). Operations are applied to it in order so every operation is
// checked against the effects of the ones before it, and nothing reaches the
// database until the whole batch is known to be valid.
type Projection struct {
	space orderkey.Space
	now   int64

	nodes    map[string]*Node
	children map[string][]*Node // live children by parent id, "" is root level, sorted by key

	changes  map[string]Change
	touched  []string
	respaced int
}

// NewProjection builds a projection from stored rows. Keys must be valid
// order keys; live siblings are sorted by (key, id).
func NewProjection(nodes []Node, space orderkey.Space, now int64) (*Projection, error) {
	if space.MaxLen <= 0 {
		space.MaxLen = orderkey.DefaultMaxLen
	}

	p := &Projection{
		space:    space,
		now:      now,
		nodes:    make(map[string]*Node, len(nodes)),
		children: make(map[string][]*Node),
		changes:  make(map[string]Change),
	}

	for i := range nodes {
		n := nodes[i]

		err := orderkey.Validate(n.OrderKey)
		if err != nil {
			return nil, fmt.Errorf("block %s: %w", n.ID, err)
		}

		if _, dup := p.nodes[n.ID]; dup {
			return nil, fmt.Errorf("block %s: loaded twice", n.ID)
		}

		p.nodes[n.ID] = &n

		if !n.Deleted() {
			p.children[n.ParentID] = append(p.children[n.ParentID], &n)
		}
	}

	for _, list := range p.children {
		slices.SortFunc(list, compareNodes)
	}

	return p, nil
}

func compareNodes(a, b *Node) int {
	if c := strings.Compare(a.OrderKey, b.OrderKey); c != 0 {
		return c
	}

	return strings.Compare(a.ID, b.ID)
}

// Node returns the node with id.
func (p *Projection) Node(id string) (*Node, bool) {
	n, ok := p.nodes[id]

	return n, ok
}

// Len is the number of nodes, live and tombstoned.
func (p *Projection) Len() int { return len(p.nodes) }

// Children returns the live children of parentID in sibling order.
func (p *Projection) Children(parentID string) []*Node {
	return slices.Clone(p.children[parentID])
}

// Reachable reports whether id is live and every ancestor is live.
func (p *Projection) Reachable(id string) bool {
	// Bounded walk: corrupt parent links must not hang the engine.
	for range len(p.nodes) + 1 {
		n, ok := p.nodes[id]
		if !ok || n.Deleted() {
			return false
		}

		if n.ParentID == "" {
			return true
		}

		id = n.ParentID
	}

	return false
}

// ReachableSet returns the ids of all reachable nodes.
func (p *Projection) ReachableSet() map[string]bool {
	out := make(map[string]bool, len(p.nodes))

	var walk func(parentID string)

	walk = func(parentID string) {
		for _, child := range p.children[parentID] {
			if out[child.ID] {
				continue
			}

			out[child.ID] = true
			walk(child.ID)
		}
	}

	walk("")

	return out
}

// IsAncestor reports whether ancestor is on the parent chain of id.
func (p *Projection) IsAncestor(ancestor, id string) bool {
	n, ok := p.nodes[id]

	for steps := 0; ok && steps <= len(p.nodes); steps++ {
		if n.ParentID == "" {
			return false
		}

		if n.ParentID == ancestor {
			return true
		}

		n, ok = p.nodes[n.ParentID]
	}

	return false
}

// Changes returns every node touched so far, in first-touch order.
func (p *Projection) Changes() []Changed {
	out := make([]Changed, 0, len(p.touched))

	for _, id := range p.touched {
		out = append(out, Changed{Node: *p.nodes[id], Change: p.changes[id]})
	}

	return out
}

// Respaced is how many sibling runs were renumbered.
func (p *Projection) Respaced() int { return p.respaced }

func (p *Projection) mark(n *Node, c Change) {
	if _, ok := p.changes[n.ID]; !ok {
		p.touched = append(p.touched, n.ID)
	}

	p.changes[n.ID] |= c
	n.UpdatedAt = p.now
}

// Apply performs one operation. The operation must already have passed
// [Validator.Check] against this projection.
func (p *Projection) Apply(op Operation) error {
	switch op.Op {
	case OpInsert:
		content := block.Content{}
		if op.Content != nil {
			content = op.Content.Clone()
		}

		n := &Node{
			ID:        op.BlockID,
			ParentID:  op.Placement.ParentID,
			Type:      op.Type,
			Content:   content,
			CreatedAt: p.now,
		}
		p.nodes[n.ID] = n
		p.mark(n, ChangeCreated)

		return p.place(n, op.Placement.Anchor)

	case OpUpdate:
		n := p.nodes[op.BlockID]
		n.Content = n.Content.Apply(*op.Patch)
		p.mark(n, ChangeContent)

		return nil

	case OpMove:
		n := p.nodes[op.BlockID]
		p.detach(n)
		n.ParentID = op.Placement.ParentID
		p.mark(n, ChangePlacement)

		return p.place(n, op.Placement.Anchor)

	case OpDelete:
		n := p.nodes[op.BlockID]
		p.detach(n)
		n.DeletedAt = p.now
		p.mark(n, ChangeDeleted)

		return nil

	case OpRestore:
		n := p.nodes[op.BlockID]
		n.DeletedAt = 0
		p.mark(n, ChangeRestored)

		return p.reattach(n)
	}

	return fmt.Errorf("unknown op %q", op.Op)
}

func (p *Projection) detach(n *Node) {
	list := p.children[n.ParentID]

	i := slices.Index(list, n)
	if i < 0 {
		return
	}

	p.children[n.ParentID] = slices.Delete(list, i, i+1)
}

// place inserts n into its parent's sibling list at anchor and gives it a key.
func (p *Projection) place(n *Node, anchor Anchor) error {
	list := p.children[n.ParentID]

	var at int

	switch anchor.Kind {
	case AnchorStart:
		at = 0
	case AnchorEnd:
		at = len(list)
	case AnchorBefore, AnchorAfter:
		at = slices.IndexFunc(list, func(s *Node) bool { return s.ID == anchor.BlockID })
		if at < 0 {
			return fmt.Errorf("anchor %s is not a child of %q", anchor.BlockID, n.ParentID)
		}

		if anchor.Kind == AnchorAfter {
			at++
		}
	}

	p.children[n.ParentID] = slices.Insert(list, at, n)

	return p.assignKey(n.ParentID, at)
}

// reattach puts a restored node back at the position of its old key. When a
// live sibling took that exact key meanwhile, the node goes right after it.
func (p *Projection) reattach(n *Node) error {
	list := p.children[n.ParentID]

	at, _ := slices.BinarySearchFunc(list, n.OrderKey, func(s *Node, key string) int {
		return strings.Compare(s.OrderKey, key)
	})

	collides := false
	for at < len(list) && list[at].OrderKey == n.OrderKey {
		at++
		collides = true
	}

	p.children[n.ParentID] = slices.Insert(list, at, n)

	if !collides {
		return nil
	}

	p.changes[n.ID] |= ChangePlacement

	return p.assignKey(n.ParentID, at)
}

// assignKey gives the node at index at of parent's list a key strictly
// between its neighbours. When the gap is exhausted the whole sibling run is
// renumbered with evenly spaced keys.
func (p *Projection) assignKey(parentID string, at int) error {
	list := p.children[parentID]

	var lower, upper string
	if at > 0 {
		lower = list[at-1].OrderKey
	}

	if at+1 < len(list) {
		upper = list[at+1].OrderKey
	}

	key, err := p.space.Between(lower, upper)
	if err == nil {
		list[at].OrderKey = key

		return nil
	}

	if !errors.Is(err, orderkey.ErrExhausted) && !errors.Is(err, orderkey.ErrOutOfOrder) {
		return fmt.Errorf("order key under %q: %w", parentID, err)
	}

	p.respace(parentID)

	return nil
}

func (p *Projection) respace(parentID string) {
	list := p.children[parentID]
	keys := orderkey.Spread(len(list))

	for i, n := range list {
		if n.OrderKey == keys[i] {
			continue
		}

		n.OrderKey = keys[i]
		p.mark(n, ChangePlacement)
	}

	p.respaced++
}
