package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
)

// ShellCmd returns the shell command.
func ShellCmd(a *app) *Command {
	return &Command{
		Flags: flag.NewFlagSet("shell", flag.ContinueOnError),
		Usage: "shell",
		Short: "Interactive prompt",
		Long: `Run commands interactively against one open database. Type 'help' for
commands and 'exit' to leave. Patches must be read from a file here.`,
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) > 0 {
				return errTooManyArgs
			}

			sh := &shell{app: a, out: o.out, errOut: o.errOut}

			return sh.run(ctx, o.in)
		},
	}
}

type shell struct {
	app    *app
	out    io.Writer
	errOut io.Writer
	liner  *liner.State
	lines  *bufio.Scanner
}

// historyFile returns the path to the history file.
func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".typenote_history")
}

func (sh *shell) run(ctx context.Context, in io.Reader) error {
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) && liner.TerminalSupported() {
		sh.liner = liner.NewLiner()
		defer sh.liner.Close()

		sh.liner.SetCtrlCAborts(true)
		sh.liner.SetCompleter(sh.complete)

		if f, err := os.Open(historyFile()); err == nil {
			_, _ = sh.liner.ReadHistory(f)
			_ = f.Close()
		}

		defer sh.saveHistory()
	} else {
		if in == nil {
			in = strings.NewReader("")
		}

		sh.lines = bufio.NewScanner(in)
	}

	fprintln(sh.out, "typenote shell on", sh.app.cfg.DBPathAbs)
	fprintln(sh.out, "Type 'help' for available commands.")

	for ctx.Err() == nil {
		line, err := sh.prompt("typenote> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if sh.liner != nil {
			sh.liner.AppendHistory(line)
		}

		fields := strings.Fields(line)

		switch fields[0] {
		case "exit", "quit", "q":
			return nil
		case "help", "?":
			sh.printHelp()

			continue
		}

		cmd := findCommand(sh.app.commands(), fields[0])
		if cmd == nil || cmd.Name() == "shell" {
			fprintln(sh.errOut, "error: unknown command:", fields[0])

			continue
		}

		// Commands inside the shell never read the shell's own input.
		o := NewIO(nil, sh.out, sh.errOut)
		if cmd.Run(ctx, o, fields[1:]) == 0 {
			o.Finish()
		}
	}

	return nil
}

func (sh *shell) prompt(p string) (string, error) {
	if sh.liner != nil {
		return sh.liner.Prompt(p)
	}

	if !sh.lines.Scan() {
		err := sh.lines.Err()
		if err == nil {
			err = io.EOF
		}

		return "", err
	}

	return sh.lines.Text(), nil
}

func (sh *shell) printHelp() {
	fprintln(sh.out, "Commands:")

	commands := sh.app.commands()
	width := usageWidth(commands)

	for _, c := range commands {
		if c.Name() != "shell" {
			fprintln(sh.out, c.HelpLine(width))
		}
	}

	exit := &Command{Usage: "exit", Short: "Leave the shell"}
	fprintln(sh.out, exit.HelpLine(width))
}

// complete provides tab completion for command names.
func (sh *shell) complete(line string) []string {
	var out []string

	for _, c := range sh.app.commands() {
		if name := c.Name(); name != "shell" && strings.HasPrefix(name, line) {
			out = append(out, name+" ")
		}
	}

	return out
}

// saveHistory persists command history to disk.
func (sh *shell) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}

	_, _ = sh.liner.WriteHistory(f)
	_ = f.Close()
}
