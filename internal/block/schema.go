package block

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrUnknownType reports a block type the resolver does not know.
	ErrUnknownType = errors.New("unknown block type")

	// ErrInvalidContent reports content that does not fit its block type.
	ErrInvalidContent = errors.New("invalid content")
)

// TextRule says what a block type accepts in Content.Text.
type TextRule int

// Text rules.
const (
	TextRich TextRule = iota // runs with marks
	TextPlain                // runs without marks
	TextNone                 // no text at all
)

// Shape is the structural contract for one block type.
type Shape struct {
	Type Type
	Text TextRule

	// NewAttrs returns a pointer to the attrs struct the attrs map must decode
	// into. Nil means the type takes no attrs.
	NewAttrs func() any
}

// SchemaResolver supplies the shape for a block type and checks content against it.
type SchemaResolver interface {
	Resolve(t Type) (*Shape, error)
	Check(t Type, c Content) error
}

// HeadingAttrs are the attrs of a heading block.
type HeadingAttrs struct {
	Level int `json:"level" validate:"required,min=1,max=6"`
}

// ListItemAttrs are the attrs of a list item. Checked is only meaningful for todo items.
type ListItemAttrs struct {
	ListStyle string `json:"list_style"        validate:"required,oneof=bullet ordered todo"`
	Checked   *bool  `json:"checked,omitempty" validate:"excluded_unless=ListStyle todo"`
}

// CalloutAttrs are the attrs of a callout block.
type CalloutAttrs struct {
	Icon string `json:"icon,omitempty" validate:"max=16"`
}

// CodeAttrs are the attrs of a code block.
type CodeAttrs struct {
	Language string `json:"language,omitempty" validate:"max=32"`
}

// Registry is the built-in [SchemaResolver].
type Registry struct {
	shapes   map[Type]*Shape
	validate *validator.Validate
}

var _ SchemaResolver = (*Registry)(nil)

// NewRegistry returns a registry with every built-in block type.
func NewRegistry() *Registry {
	r := &Registry{
		shapes:   make(map[Type]*Shape),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	r.Register(&Shape{Type: TypeParagraph, Text: TextRich})
	r.Register(&Shape{Type: TypeQuote, Text: TextRich})
	r.Register(&Shape{Type: TypeHeading, Text: TextRich, NewAttrs: func() any { return &HeadingAttrs{} }})
	r.Register(&Shape{Type: TypeListItem, Text: TextRich, NewAttrs: func() any { return &ListItemAttrs{} }})
	r.Register(&Shape{Type: TypeCallout, Text: TextRich, NewAttrs: func() any { return &CalloutAttrs{} }})
	r.Register(&Shape{Type: TypeCode, Text: TextPlain, NewAttrs: func() any { return &CodeAttrs{} }})
	r.Register(&Shape{Type: TypeDivider, Text: TextNone})

	return r
}

// Register adds or replaces a shape.
func (r *Registry) Register(s *Shape) {
	r.shapes[s.Type] = s
}

// Resolve implements [SchemaResolver].
func (r *Registry) Resolve(t Type) (*Shape, error) {
	s, ok := r.shapes[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}

	return s, nil
}

// Check validates c against the shape registered for t.
func (r *Registry) Check(t Type, c Content) error {
	s, err := r.Resolve(t)
	if err != nil {
		return err
	}

	return r.CheckShape(s, c)
}

// CheckShape validates c against s. Errors wrap [ErrInvalidContent].
func (r *Registry) CheckShape(s *Shape, c Content) error {
	err := checkUTF8(c)
	if err != nil {
		return err
	}

	switch s.Text {
	case TextNone:
		if len(c.Text) > 0 {
			return fmt.Errorf("%w: %s takes no text", ErrInvalidContent, s.Type)
		}
	case TextPlain:
		for _, run := range c.Text {
			if len(run.Marks) > 0 {
				return fmt.Errorf("%w: %s text takes no marks", ErrInvalidContent, s.Type)
			}
		}
	case TextRich:
	}

	err = r.validate.Struct(c)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidContent, describe(err))
	}

	if s.NewAttrs == nil {
		if len(c.Attrs) > 0 {
			return fmt.Errorf("%w: %s takes no attrs", ErrInvalidContent, s.Type)
		}

		return nil
	}

	attrs := s.NewAttrs()

	err = decodeStrict(c.Attrs, attrs)
	if err != nil {
		return fmt.Errorf("%w: %s attrs: %w", ErrInvalidContent, s.Type, err)
	}

	err = r.validate.Struct(attrs)
	if err != nil {
		return fmt.Errorf("%w: %s attrs: %s", ErrInvalidContent, s.Type, describe(err))
	}

	return nil
}

// checkUTF8 rejects strings JSON storage would rewrite, so the indexed text
// always equals the stored text.
func checkUTF8(c Content) error {
	for i, run := range c.Text {
		if !utf8.ValidString(run.Text) {
			return fmt.Errorf("%w: run %d: text is not valid UTF-8", ErrInvalidContent, i)
		}

		for _, m := range run.Marks {
			if !utf8.ValidString(m.Href) || !utf8.ValidString(m.ObjectID) || !utf8.ValidString(m.BlockID) {
				return fmt.Errorf("%w: run %d: %s mark is not valid UTF-8", ErrInvalidContent, i, m.Type)
			}
		}
	}

	for key, v := range c.Attrs {
		str, ok := v.(string)
		if !utf8.ValidString(key) || (ok && !utf8.ValidString(str)) {
			return fmt.Errorf("%w: attr %q is not valid UTF-8", ErrInvalidContent, key)
		}
	}

	return nil
}

// decodeStrict round-trips the attrs map through JSON into dst, rejecting
// unknown keys and mistyped values.
func decodeStrict(attrs map[string]any, dst any) error {
	if attrs == nil {
		attrs = map[string]any{}
	}

	data, err := json.Marshal(attrs)
	if err != nil {
		return err
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	return dec.Decode(dst)
}

// describe flattens validator errors into "field: tag" pairs.
func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}

	return strings.Join(parts, ", ")
}
