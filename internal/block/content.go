// Package block defines block types, their content payload, and the
// content-derived data (plain text, search terms, references) that the
// store indexes.
package block

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"
)

// Type is the closed set of block variants.
type Type string

// Block types.
const (
	TypeParagraph Type = "paragraph"
	TypeHeading   Type = "heading"
	TypeListItem  Type = "list_item"
	TypeCallout   Type = "callout"
	TypeQuote     Type = "quote"
	TypeCode      Type = "code"
	TypeDivider   Type = "divider"
)

// Mark types.
const (
	MarkBold   = "bold"
	MarkItalic = "italic"
	MarkCode   = "code"
	MarkStrike = "strike"
	MarkLink   = "link"
	MarkRef    = "ref"
)

// Mark annotates a text run. A "ref" mark is an inline reference to another
// object (and optionally one of its blocks) and becomes a backlink edge.
type Mark struct {
	Type     string `json:"type"                validate:"required,oneof=bold italic code strike link ref"`
	Href     string `json:"href,omitempty"      validate:"required_if=Type link,excluded_unless=Type link"`
	ObjectID string `json:"object_id,omitempty" validate:"required_if=Type ref,excluded_unless=Type ref"`
	BlockID  string `json:"block_id,omitempty"  validate:"excluded_unless=Type ref"`
}

// Run is a span of text sharing one set of marks.
type Run struct {
	Text  string `json:"text"`
	Marks []Mark `json:"marks,omitempty" validate:"dive"`
}

// Content is the structured payload stored for a block.
type Content struct {
	Text  []Run          `json:"text,omitempty" validate:"dive"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// ContentPatch is a partial content replacement used by update operations.
// A non-nil Text replaces all runs. Attrs keys are merged; a nil value
// removes the key.
type ContentPatch struct {
	Text  *[]Run         `json:"text,omitempty"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Ref is one outgoing reference extracted from content.
// BlockID is empty when the reference targets the whole object.
type Ref struct {
	ObjectID string
	BlockID  string
}

// Apply returns a copy of c with the patch applied. c is not modified.
func (c Content) Apply(p ContentPatch) Content {
	out := c.Clone()

	if p.Text != nil {
		out.Text = slices.Clone(*p.Text)
	}

	for key, value := range p.Attrs {
		if value == nil {
			delete(out.Attrs, key)

			continue
		}

		if out.Attrs == nil {
			out.Attrs = make(map[string]any, len(p.Attrs))
		}

		out.Attrs[key] = value
	}

	if len(out.Attrs) == 0 {
		out.Attrs = nil
	}

	return out
}

// Clone returns a copy that shares no slices or maps with c.
func (c Content) Clone() Content {
	out := Content{}

	if c.Text != nil {
		out.Text = make([]Run, len(c.Text))
		for i, run := range c.Text {
			out.Text[i] = Run{Text: run.Text, Marks: slices.Clone(run.Marks)}
		}
	}

	if c.Attrs != nil {
		out.Attrs = maps.Clone(c.Attrs)
	}

	return out
}

// Encode renders the canonical JSON stored in the blocks table.
// encoding/json sorts map keys, so equal content encodes to equal bytes.
func (c Content) Encode() (string, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode content: %w", err)
	}

	return string(data), nil
}

// Decode parses content stored by [Content.Encode].
func Decode(raw string) (Content, error) {
	var c Content

	if raw == "" {
		return c, nil
	}

	err := json.Unmarshal([]byte(raw), &c)
	if err != nil {
		return Content{}, fmt.Errorf("decode content: %w", err)
	}

	return c, nil
}

// PlainText concatenates the text of all runs.
func (c Content) PlainText() string {
	var b strings.Builder

	for _, run := range c.Text {
		b.WriteString(run.Text)
	}

	return b.String()
}

// Refs returns the distinct references in c, sorted by object then block id.
func (c Content) Refs() []Ref {
	seen := make(map[Ref]struct{})
	refs := make([]Ref, 0)

	for _, run := range c.Text {
		for _, mark := range run.Marks {
			if mark.Type != MarkRef || mark.ObjectID == "" {
				continue
			}

			ref := Ref{ObjectID: mark.ObjectID, BlockID: mark.BlockID}
			if _, ok := seen[ref]; ok {
				continue
			}

			seen[ref] = struct{}{}
			refs = append(refs, ref)
		}
	}

	slices.SortFunc(refs, func(a, b Ref) int {
		if a.ObjectID != b.ObjectID {
			return strings.Compare(a.ObjectID, b.ObjectID)
		}

		return strings.Compare(a.BlockID, b.BlockID)
	})

	return refs
}

// Words splits text into lower-case letter/digit runs, in order.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Terms returns the distinct [Words] of text, sorted.
func Terms(text string) []string {
	fields := Words(text)

	slices.Sort(fields)

	return slices.Compact(fields)
}
