package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/natefinch/atomic"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/typenote/internal/store"
)

// TrashCmd returns the trash command.
func TrashCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("trash", flag.ContinueOnError),
		Usage: "trash <object-id>",
		Short: "Move an object to the trash",
		Long:  "Trash an object. Its blocks leave search and backlinks; the rows are kept.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			objectID, err := oneObjectID(args)
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			err = s.TrashObject(ctx, objectID)
			if err != nil {
				return err
			}

			o.Println("trashed", objectID)

			return nil
		},
	}
}

// ReindexCmd returns the reindex command.
func ReindexCmd(a *app) *Command {
	fs := flag.NewFlagSet("reindex", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print stats as JSON")

	return &Command{
		Flags: fs,
		Usage: "reindex [object-id] [flags]",
		Short: "Rebuild search and backlink indexes",
		Long: `Re-derive the search and backlink rows of one object, or of all objects,
from the stored blocks. Only differences are written.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 1 {
				return errTooManyArgs
			}

			var objectID string
			if len(args) == 1 {
				objectID = args[0]
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			stats, err := s.Reindex(ctx, objectID)
			if err != nil {
				return err
			}

			if *asJSON {
				return o.PrintJSON(stats)
			}

			o.Printf("search_written=%d search_removed=%d terms_added=%d terms_removed=%d refs_added=%d refs_removed=%d\n",
				stats.SearchWritten, stats.SearchRemoved, stats.TermsAdded, stats.TermsRemoved, stats.RefsAdded, stats.RefsRemoved)

			return nil
		},
	}
}

// ExportCmd returns the export command.
func ExportCmd(a *app) *Command {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	out := fs.StringP("out", "o", "", "Write to `file` atomically instead of stdout")

	return &Command{
		Flags: fs,
		Usage: "export <object-id> [flags]",
		Short: "Export an object as JSON",
		Long:  "Export an object with all its block rows, deleted blocks included.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			objectID, err := oneObjectID(args)
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			doc, err := s.ExportObject(ctx, objectID)
			if err != nil {
				return err
			}

			if *out == "" {
				return o.PrintJSON(doc)
			}

			data, err := json.MarshalIndent(doc, "", "  ")
			if err != nil {
				return fmt.Errorf("encode export: %w", err)
			}

			path := *out
			if !filepath.IsAbs(path) {
				path = filepath.Join(a.cfg.EffectiveCwd, path)
			}

			err = atomic.WriteFile(path, bytes.NewReader(append(data, '\n')))
			if err != nil {
				return fmt.Errorf("write export: %w", err)
			}

			o.Printf("exported %s (%d blocks) to %s\n", doc.Object.ID, len(doc.Blocks), path)

			return nil
		},
	}
}

// ImportCmd returns the import command.
func ImportCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("import", flag.ContinueOnError),
		Usage: "import [file|-]",
		Short: "Import an exported object",
		Long:  "Load an export document under its original ids. Neither the object nor its blocks may exist yet.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 1 {
				return errTooManyArgs
			}

			source := "-"
			if len(args) == 1 {
				source = args[0]
			}

			raw, err := readInput(a, o, source)
			if err != nil {
				return fmt.Errorf("%w: %w", errImportInput, err)
			}

			var doc store.Export

			err = json.Unmarshal(raw, &doc)
			if err != nil {
				return fmt.Errorf("%w: %w", errImportInput, err)
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			obj, err := s.ImportObject(ctx, &doc)
			if err != nil {
				return err
			}

			o.Printf("imported %s (%d blocks)\n", obj.ID, len(doc.Blocks))

			return nil
		},
	}
}
