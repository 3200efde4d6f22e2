package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/typenote/internal/block"
	"github.com/calvinalkan/typenote/internal/store"
)

// SearchCmd returns the search command.
func SearchCmd(a *app) *Command {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	objectID := fs.StringP("object", "o", "", "Only search the object with this `id`")
	objectType := fs.StringP("type", "t", "", "Only search objects of this `type`")
	blockType := fs.String("block-type", "", "Only match blocks of this `type`")
	limit := fs.IntP("limit", "n", store.DefaultSearchLimit, "Show at most `n` matches")
	asJSON := fs.Bool("json", false, "Print matches as JSON")

	return &Command{
		Flags: fs,
		Usage: "search <query> [flags]",
		Short: "Full-text search over blocks",
		Long: `Find reachable blocks containing every word of the query. The last word
also matches as a prefix.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			query := strings.TrimSpace(strings.Join(args, " "))
			if query == "" {
				return errQueryRequired
			}

			filters := store.SearchFilters{ObjectID: *objectID, BlockType: block.Type(*blockType), Limit: *limit}

			if *objectType != "" {
				t, err := store.ParseObjectType(*objectType)
				if err != nil {
					return err
				}

				filters.ObjectType = t
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			matches, err := s.SearchBlocks(ctx, query, filters)
			if err != nil {
				return err
			}

			if *limit > 0 && len(matches) == *limit {
				o.Warn(fmt.Sprintf("results truncated at %d", *limit), "narrow the query or raise --limit")
			}

			if *asJSON {
				return o.PrintJSON(matches)
			}

			for _, m := range matches {
				o.Printf("%s  %s  ^%s  %s\n", m.ObjectID, m.ObjectTitle, m.BlockID, m.Text)
			}

			return nil
		},
	}
}

// BacklinksCmd returns the backlinks command.
func BacklinksCmd(a *app) *Command {
	fs := flag.NewFlagSet("backlinks", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print backlinks as JSON")

	return &Command{
		Flags: fs,
		Usage: "backlinks <object-id> [flags]",
		Short: "List blocks referencing an object",
		Long:  "List every reachable block of a live object that references the given object.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			objectID, err := oneObjectID(args)
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			links, err := s.GetBacklinks(ctx, objectID)
			if err != nil {
				return err
			}

			if *asJSON {
				return o.PrintJSON(links)
			}

			for _, l := range links {
				target := ""
				if l.TargetBlockID != "" {
					target = " -> ^" + l.TargetBlockID
				}

				o.Printf("%s  %s  ^%s%s  %s\n", l.SourceObjectID, l.SourceObjectTitle, l.SourceBlockID, target, l.Text)
			}

			return nil
		},
	}
}
