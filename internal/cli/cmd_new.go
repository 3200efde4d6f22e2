package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/typenote/internal/store"
)

// NewCmd returns the new command.
func NewCmd(a *app) *Command {
	fs := flag.NewFlagSet("new", flag.ContinueOnError)
	typ := fs.StringP("type", "t", string(store.ObjectNote), "Object `type`: "+objectTypeList())
	asJSON := fs.Bool("json", false, "Print the object as JSON")

	return &Command{
		Flags: fs,
		Usage: "new <title> [flags]",
		Short: "Create an empty object",
		Long:  "Create an empty object at revision 0 and print its id.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			title := strings.TrimSpace(strings.Join(args, " "))
			if title == "" {
				return errTitleRequired
			}

			objectType, err := store.ParseObjectType(*typ)
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			obj, err := s.CreateObject(ctx, objectType, title)
			if err != nil {
				return err
			}

			if *asJSON {
				return o.PrintJSON(obj)
			}

			o.Println(obj.ID)

			return nil
		},
	}
}

func objectTypeList() string {
	names := make([]string, len(store.ObjectTypes))
	for i, t := range store.ObjectTypes {
		names[i] = string(t)
	}

	return strings.Join(names, ", ")
}

func formatObjectLine(obj *store.Object) string {
	line := fmt.Sprintf("%s  %-10s  r%-4d  %s", obj.ID, obj.Type, obj.Revision, obj.Title)
	if obj.Trashed() {
		line += "  [trashed]"
	}

	return line
}
