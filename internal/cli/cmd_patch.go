package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/typenote/internal/patch"
)

// PatchCmd returns the patch command.
func PatchCmd(a *app) *Command {
	fs := flag.NewFlagSet("patch", flag.ContinueOnError)
	base := fs.Int64P("base", "b", 0, "Base `revision` (overrides base_revision in the document)")
	dryRun := fs.Bool("dry-run", false, "Validate and show placements without writing")
	asJSON := fs.Bool("json", false, "Print the result as JSON")

	return &Command{
		Flags: fs,
		Usage: "patch <object-id> [file|-] [flags]",
		Short: "Apply a block patch",
		Long: `Apply a JSON block patch to an object, atomically.

The document is either {"base_revision": N, "ops": [...]} or a bare array of
operations (then --base is required). It is read from file, or from stdin
when file is "-" or omitted.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 {
				return errObjectIDRequired
			}

			if len(args) > 2 {
				return errTooManyArgs
			}

			source := "-"
			if len(args) == 2 {
				source = args[1]
			}

			raw, err := readInput(a, o, source)
			if err != nil {
				return fmt.Errorf("%w: %w", errPatchInput, err)
			}

			p, bare, err := decodePatch(raw)
			if err != nil {
				return fmt.Errorf("%w: %w", errPatchInput, err)
			}

			p.ObjectID = args[0]

			switch {
			case fs.Changed("base"):
				p.BaseRevision = *base
			case bare:
				return errBaseRequired
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			if *dryRun {
				results, err := s.ValidateBlockPatch(ctx, p)
				if err != nil {
					return err
				}

				if *asJSON {
					return o.PrintJSON(results)
				}

				o.Printf("ok: %d ops would apply at revision %d\n", len(results), p.BaseRevision)
				printOpResults(o, results)

				return nil
			}

			res, err := s.ApplyBlockPatch(ctx, p)
			if err != nil {
				return err
			}

			if *asJSON {
				return o.PrintJSON(res)
			}

			o.Printf("revision %d (%d ops, %d index writes)\n", res.Revision, len(res.Ops), res.Index.Writes())
			printOpResults(o, res.Ops)

			return nil
		},
	}
}

func printOpResults(o *IO, results []patch.OpResult) {
	for _, r := range results {
		parent := r.ParentID
		if parent == "" {
			parent = "-"
		}

		o.Printf("%-8s %s  parent=%s  key=%s\n", r.Op, r.BlockID, parent, r.OrderKey)
	}
}

// decodePatch accepts a patch document or a bare operation array. bare
// reports the latter, which carries no base revision.
func decodePatch(raw []byte) (p patch.Patch, bare bool, err error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return p, false, io.ErrUnexpectedEOF
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()

	if trimmed[0] == '[' {
		return p, true, dec.Decode(&p.Ops)
	}

	return p, false, dec.Decode(&p)
}

// readInput reads a named file relative to the working directory, or the
// command's stdin for "-".
func readInput(a *app, o *IO, source string) ([]byte, error) {
	if source != "-" {
		path := source
		if !filepath.IsAbs(path) {
			path = filepath.Join(a.cfg.EffectiveCwd, path)
		}

		return os.ReadFile(path)
	}

	if o.in == nil {
		return nil, io.ErrUnexpectedEOF
	}

	return io.ReadAll(o.in)
}
