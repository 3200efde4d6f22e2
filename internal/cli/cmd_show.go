package cli

import (
	"context"
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/typenote/internal/block"
	"github.com/calvinalkan/typenote/internal/store"
)

// ShowCmd returns the show command.
func ShowCmd(a *app) *Command {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	asJSON := fs.Bool("json", false, "Print the tree as JSON")
	ids := fs.Bool("ids", true, "Suffix each block with ^<block-id>")

	return &Command{
		Flags: fs,
		Usage: "show <object-id> [flags]",
		Short: "Show an object's block tree",
		Long:  "Print the reachable blocks of an object as an indented outline.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			objectID, err := oneObjectID(args)
			if err != nil {
				return err
			}

			s, err := a.open(ctx)
			if err != nil {
				return err
			}

			tree, err := s.GetTree(ctx, objectID)
			if err != nil {
				return err
			}

			if *asJSON {
				return o.PrintJSON(tree)
			}

			o.Printf("# %s (%s, revision %d)\n", tree.Object.Title, tree.Object.Type, tree.Object.Revision)

			tree.Walk(func(b *store.Block, depth int) {
				line := strings.Repeat("  ", depth) + renderBlock(b)
				if *ids {
					line += "  ^" + b.ID
				}

				o.Println(line)
			})

			return nil
		},
	}
}

func oneObjectID(args []string) (string, error) {
	switch {
	case len(args) == 0:
		return "", errObjectIDRequired
	case len(args) > 1:
		return "", errTooManyArgs
	}

	return args[0], nil
}

// renderBlock renders one block as a markdown-like line.
func renderBlock(b *store.Block) string {
	text := b.Content.PlainText()

	switch b.Type {
	case block.TypeHeading:
		return strings.Repeat("#", max(1, intAttr(b.Content.Attrs, "level"))) + " " + text
	case block.TypeListItem:
		return listMarker(b.Content.Attrs) + text
	case block.TypeQuote:
		return "> " + text
	case block.TypeCallout:
		if icon, _ := b.Content.Attrs["icon"].(string); icon != "" {
			return icon + " " + text
		}

		return "! " + text
	case block.TypeCode:
		lang, _ := b.Content.Attrs["language"].(string)
		return fmt.Sprintf("```%s %s ```", lang, text)
	case block.TypeDivider:
		return "---"
	default:
		return text
	}
}

func listMarker(attrs map[string]any) string {
	style, _ := attrs["list_style"].(string)

	switch style {
	case "ordered":
		return "1. "
	case "todo":
		if checked, _ := attrs["checked"].(bool); checked {
			return "[x] "
		}

		return "[ ] "
	default:
		return "- "
	}
}

// intAttr reads a numeric attr that may have come through JSON as float64.
func intAttr(attrs map[string]any, key string) int {
	switch v := attrs[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
