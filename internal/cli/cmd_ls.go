package cli

import (
	"context"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/typenote/internal/store"
)

// LsCmd returns the ls command.
func LsCmd(a *app) *Command {
	fs := flag.NewFlagSet("ls", flag.ContinueOnError)
	typ := fs.StringP("type", "t", "", "Only list objects of this `type`")
	all := fs.BoolP("all", "a", false, "Include trashed objects")
	limit := fs.IntP("limit", "n", 0, "Show at most `n` objects (0 = all)")
	asJSON := fs.Bool("json", false, "Print objects as JSON")

	return &Command{
		Flags: fs,
		Usage: "ls [flags]",
		Short: "List objects",
		Long:  "List objects in creation order: id, type, revision and title.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return errTooManyArgs
			}

			opts := &store.ListOptions{IncludeTrashed: *all, Limit: *limit}

			if *typ != "" {
				t, err := store.ParseObjectType(*typ)
				if err != nil {
					return err
				}

				opts.Type = t
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			objects, err := s.ListObjects(ctx, opts)
			if err != nil {
				return err
			}

			if *asJSON {
				return o.PrintJSON(objects)
			}

			for i := range objects {
				o.Println(formatObjectLine(&objects[i]))
			}

			return nil
		},
	}
}
