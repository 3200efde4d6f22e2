package block_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/typenote/internal/block"
)

func text(s string) []block.Run {
	return []block.Run{{Text: s}}
}

func Test_Registry_Check_Accepts_Well_Formed_Content(t *testing.T) {
	t.Parallel()

	reg := block.NewRegistry()
	checked := true

	cases := []struct {
		name    string
		typ     block.Type
		content block.Content
	}{
		{"paragraph", block.TypeParagraph, block.Content{Text: text("hello")}},
		{"empty paragraph", block.TypeParagraph, block.Content{}},
		{"heading", block.TypeHeading, block.Content{Text: text("Title"), Attrs: map[string]any{"level": 2}}},
		{"heading float level", block.TypeHeading, block.Content{Attrs: map[string]any{"level": float64(6)}}},
		{"bullet", block.TypeListItem, block.Content{Attrs: map[string]any{"list_style": "bullet"}}},
		{"todo", block.TypeListItem, block.Content{Attrs: map[string]any{"list_style": "todo", "checked": checked}}},
		{"callout", block.TypeCallout, block.Content{Attrs: map[string]any{"icon": "!"}}},
		{"code", block.TypeCode, block.Content{Text: text("x := 1"), Attrs: map[string]any{"language": "go"}}},
		{"divider", block.TypeDivider, block.Content{}},
		{"ref mark", block.TypeParagraph, block.Content{Text: []block.Run{
			{Text: "see "},
			{Text: "other", Marks: []block.Mark{{Type: block.MarkRef, ObjectID: "O2"}}},
		}}},
		{"link mark", block.TypeQuote, block.Content{Text: []block.Run{
			{Text: "site", Marks: []block.Mark{{Type: block.MarkLink, Href: "https://example.com"}, {Type: block.MarkBold}}},
		}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.NoError(t, reg.Check(tc.typ, tc.content))
		})
	}
}

func Test_Registry_Check_Rejects_Malformed_Content(t *testing.T) {
	t.Parallel()

	reg := block.NewRegistry()
	checked := true

	cases := []struct {
		name    string
		typ     block.Type
		content block.Content
	}{
		{"heading without level", block.TypeHeading, block.Content{Text: text("x")}},
		{"heading level too high", block.TypeHeading, block.Content{Attrs: map[string]any{"level": 7}}},
		{"heading fractional level", block.TypeHeading, block.Content{Attrs: map[string]any{"level": 1.5}}},
		{"heading level as string", block.TypeHeading, block.Content{Attrs: map[string]any{"level": "1"}}},
		{"list item without style", block.TypeListItem, block.Content{}},
		{"list item bad style", block.TypeListItem, block.Content{Attrs: map[string]any{"list_style": "star"}}},
		{"checked on bullet", block.TypeListItem, block.Content{Attrs: map[string]any{"list_style": "bullet", "checked": checked}}},
		{"unknown attr", block.TypeCallout, block.Content{Attrs: map[string]any{"color": "red"}}},
		{"attrs on paragraph", block.TypeParagraph, block.Content{Attrs: map[string]any{"level": 1}}},
		{"marks in code", block.TypeCode, block.Content{Text: []block.Run{{Text: "x", Marks: []block.Mark{{Type: block.MarkBold}}}}}},
		{"text in divider", block.TypeDivider, block.Content{Text: text("---")}},
		{"ref without object", block.TypeParagraph, block.Content{Text: []block.Run{{Text: "x", Marks: []block.Mark{{Type: block.MarkRef}}}}}},
		{"link without href", block.TypeParagraph, block.Content{Text: []block.Run{{Text: "x", Marks: []block.Mark{{Type: block.MarkLink}}}}}},
		{"href on bold", block.TypeParagraph, block.Content{Text: []block.Run{{Text: "x", Marks: []block.Mark{{Type: block.MarkBold, Href: "h"}}}}}},
		{"invalid utf8 text", block.TypeParagraph, block.Content{Text: text("caf\xff\xfe ok")}},
		{"invalid utf8 href", block.TypeParagraph, block.Content{Text: []block.Run{{Text: "x", Marks: []block.Mark{{Type: block.MarkLink, Href: "http://\xc3"}}}}}},
		{"invalid utf8 attr", block.TypeCallout, block.Content{Attrs: map[string]any{"icon": "\xff"}}},
		{"unknown mark", block.TypeParagraph, block.Content{Text: []block.Run{{Text: "x", Marks: []block.Mark{{Type: "glow"}}}}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := reg.Check(tc.typ, tc.content)
			require.ErrorIs(t, err, block.ErrInvalidContent)
		})
	}
}

func Test_Registry_Check_Returns_ErrUnknownType_When_Type_Unregistered(t *testing.T) {
	t.Parallel()

	err := block.NewRegistry().Check("table", block.Content{})
	require.ErrorIs(t, err, block.ErrUnknownType)
}

func Test_Content_Apply_Replaces_Text_And_Merges_Attrs(t *testing.T) {
	t.Parallel()

	base := block.Content{
		Text:  text("old"),
		Attrs: map[string]any{"list_style": "todo", "checked": true},
	}

	newText := text("new")
	got := base.Apply(block.ContentPatch{
		Text:  &newText,
		Attrs: map[string]any{"checked": nil, "list_style": "bullet"},
	})

	want := block.Content{
		Text:  text("new"),
		Attrs: map[string]any{"list_style": "bullet"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("content mismatch (-want +got):\n%s", diff)
	}

	// The receiver is left untouched.
	assert.Equal(t, "old", base.PlainText())
	assert.Equal(t, true, base.Attrs["checked"])
}

func Test_Content_Apply_Keeps_Text_When_Patch_Has_No_Text(t *testing.T) {
	t.Parallel()

	base := block.Content{Text: text("keep")}
	got := base.Apply(block.ContentPatch{})

	assert.Equal(t, "keep", got.PlainText())
	assert.Nil(t, got.Attrs)
}

func Test_Content_Encode_Is_Canonical(t *testing.T) {
	t.Parallel()

	a := block.Content{Attrs: map[string]any{"b": 1, "a": 2}}
	b := block.Content{Attrs: map[string]any{"a": 2, "b": 1}}

	encA, err := a.Encode()
	require.NoError(t, err)

	encB, err := b.Encode()
	require.NoError(t, err)

	assert.Equal(t, encA, encB)

	decoded, err := block.Decode(encA)
	require.NoError(t, err)

	reencoded, err := decoded.Encode()
	require.NoError(t, err)
	assert.Equal(t, encA, reencoded)
}

func Test_Content_Refs_Are_Distinct_And_Sorted(t *testing.T) {
	t.Parallel()

	c := block.Content{Text: []block.Run{
		{Text: "b", Marks: []block.Mark{{Type: block.MarkRef, ObjectID: "O2"}}},
		{Text: "a", Marks: []block.Mark{{Type: block.MarkRef, ObjectID: "O1", BlockID: "B9"}}},
		{Text: "dup", Marks: []block.Mark{{Type: block.MarkRef, ObjectID: "O2"}, {Type: block.MarkBold}}},
		{Text: "plain"},
	}}

	want := []block.Ref{{ObjectID: "O1", BlockID: "B9"}, {ObjectID: "O2"}}

	if diff := cmp.Diff(want, c.Refs()); diff != "" {
		t.Fatalf("refs mismatch (-want +got):\n%s", diff)
	}
}

func Test_Terms_Lowercases_And_Deduplicates(t *testing.T) {
	t.Parallel()

	got := block.Terms("Hello, hello WORLD! Grüße 42x")
	want := []string{"42x", "grüße", "hello", "world"}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("terms mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, block.Terms(" ,.- "))
}
