package store_test

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/typenote/internal/patch"
	"github.com/calvinalkan/typenote/internal/store"
)

func exportFixture(t *testing.T, s *store.Store) (*store.Object, *store.Export) {
	t.Helper()

	obj := newObject(t, s, "Portable")

	mustApply(t, s, obj.ID, 0,
		insertPara("E1", "first root", "", patch.End()),
		insertPara("E2", "child words", "E1", patch.End()),
		insertPara("E3", "second root", "", patch.End()),
		insertPara("E4", "soon deleted", "", patch.End()),
	)
	mustApply(t, s, obj.ID, 1, patch.Delete("E4"))

	doc, err := s.ExportObject(t.Context(), obj.ID)
	require.NoError(t, err)

	return obj, doc
}

func Test_ImportObject_Recreates_Tree_And_Index_When_Export_Is_Loaded_Into_Fresh_Store(t *testing.T) {
	t.Parallel()

	src := openStore(t)
	obj, doc := exportFixture(t, src)

	assert.Equal(t, store.ExportVersion, doc.Version)
	require.Len(t, doc.Blocks, 4, "tombstones are exported")

	// Contract: the document survives a JSON round trip unchanged.
	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var decoded store.Export
	require.NoError(t, json.Unmarshal(raw, &decoded))

	dst := openStore(t)

	imported, err := dst.ImportObject(t.Context(), &decoded)
	require.NoError(t, err)
	assert.Equal(t, obj.ID, imported.ID)
	assert.Equal(t, int64(2), imported.Revision)

	if diff := cmp.Diff(outline(t, src, obj.ID), outline(t, dst, obj.ID)); diff != "" {
		t.Fatalf("imported tree mismatch (-src +dst):\n%s", diff)
	}

	assert.Equal(t, []string{"E2"}, searchIDs(t, dst, "child", store.SearchFilters{}))
	assert.Empty(t, searchIDs(t, dst, "deleted", store.SearchFilters{}))

	// Contract: deleted blocks stay restorable, at the imported revision.
	mustApply(t, dst, obj.ID, 2, patch.Restore("E4"))
	assert.Equal(t, []string{"E4"}, searchIDs(t, dst, "deleted", store.SearchFilters{}))

	again, err := dst.ExportObject(t.Context(), obj.ID)
	require.NoError(t, err)
	assert.Len(t, again.Blocks, 4)
}

func Test_ImportObject_Rejects_Document_When_Object_Or_Blocks_Exist(t *testing.T) {
	t.Parallel()

	s := openStore(t)
	_, doc := exportFixture(t, s)

	_, err := s.ImportObject(t.Context(), doc)
	require.ErrorIs(t, err, store.ErrObjectExists)

	id, err := store.NewUUIDv7()
	require.NoError(t, err)

	doc.Object.ID = id.String()

	_, err = s.ImportObject(t.Context(), doc)
	require.ErrorIs(t, err, store.ErrInvalidExport)
}

func Test_ImportObject_Rejects_Malformed_Documents(t *testing.T) {
	t.Parallel()

	base := openStore(t)
	_, doc := exportFixture(t, base)

	tests := []struct {
		name   string
		mutate func(d *store.Export)
	}{
		{name: "version", mutate: func(d *store.Export) { d.Version = 7 }},
		{name: "object id", mutate: func(d *store.Export) { d.Object.ID = "nope" }},
		{name: "object type", mutate: func(d *store.Export) { d.Object.Type = "spreadsheet" }},
		{name: "revision", mutate: func(d *store.Export) { d.Object.Revision = -1 }},
		{name: "block id", mutate: func(d *store.Export) { d.Blocks[0].ID = "bad id!" }},
		{name: "missing parent", mutate: func(d *store.Export) { d.Blocks[0].ParentID = "GONE" }},
		{name: "content", mutate: func(d *store.Export) { d.Blocks[0].Type = "table" }},
		{name: "order key", mutate: func(d *store.Export) { d.Blocks[0].OrderKey = "a0" }},
		{name: "duplicate key", mutate: func(d *store.Export) {
			for i := range d.Blocks {
				if d.Blocks[i].ParentID == "" {
					d.Blocks[i].OrderKey = "V"
				}
			}
		}},
		{name: "cycle", mutate: func(d *store.Export) {
			for i := range d.Blocks {
				switch d.Blocks[i].ID {
				case "E1":
					d.Blocks[i].ParentID = "E2"
				case "E2":
					d.Blocks[i].ParentID = "E1"
				}
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			raw, err := json.Marshal(doc)
			require.NoError(t, err)

			var d store.Export
			require.NoError(t, json.Unmarshal(raw, &d))

			tt.mutate(&d)

			_, err = openStore(t).ImportObject(t.Context(), &d)
			require.ErrorIs(t, err, store.ErrInvalidExport)
		})
	}
}
