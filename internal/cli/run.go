// Package cli implements the typenote command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/typenote/internal/config"
	"github.com/calvinalkan/typenote/internal/logging"
	"github.com/calvinalkan/typenote/internal/store"
)

var errNoCommand = errors.New("no command provided")

// Run is the main entry point. Returns exit code.
// A value on sigCh cancels the running command.
func Run(in io.Reader, out io.Writer, errOut io.Writer, args []string, env map[string]string, sigCh <-chan os.Signal) int {
	globals := newGlobalFlags()

	err := globals.set.Parse(args[min(1, len(args)):])
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fprintln(errOut, "error:", err)
		fprintln(errOut)
		printUsage(errOut, globals, nil)

		return 1
	}

	rest := globals.set.Args()

	if globals.help || errors.Is(err, flag.ErrHelp) || len(args) < 2 {
		printUsage(out, globals, nil)
		return 0
	}

	if len(rest) == 0 {
		fprintln(errOut, "error:", errNoCommand)
		fprintln(errOut)
		printUsage(errOut, globals, nil)

		return 1
	}

	cfg, err := config.Load(config.LoadInput{
		WorkDirOverride:  globals.workDir,
		ConfigPath:       globals.configPath,
		DBPathOverride:   globals.dbPath,
		LogLevelOverride: globals.logLevel,
		Env:              env,
	})
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	log, err := logging.New().Writer(errOut).Level(cfg.LogLevel).File(cfg.LogFileAbs).Make()
	if err != nil {
		fprintln(errOut, "error:", err)
		return 1
	}

	defer func() { _ = log.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sigCh != nil {
		go func() {
			select {
			case <-sigCh:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	a := &app{cfg: cfg, log: log.Logger}
	defer a.close()

	name := rest[0]

	cmd := findCommand(a.commands(), name)
	if cmd == nil {
		fprintln(errOut, "error: unknown command:", name)
		fprintln(errOut)
		printUsage(errOut, globals, a.commands())

		return 1
	}

	o := NewIO(in, out, errOut)

	code := cmd.Run(ctx, o, rest[1:])
	if code != 0 {
		return code
	}

	return o.Finish()
}

type globalFlags struct {
	set        *flag.FlagSet
	workDir    string
	configPath string
	dbPath     string
	logLevel   string
	help       bool
}

func newGlobalFlags() *globalFlags {
	g := &globalFlags{set: flag.NewFlagSet("typenote", flag.ContinueOnError)}

	g.set.SetInterspersed(false)
	g.set.SetOutput(&strings.Builder{})
	g.set.StringVarP(&g.workDir, "cwd", "C", "", "Run as if started in `dir`")
	g.set.StringVarP(&g.configPath, "config", "c", "", "Use config `file` instead of .typenote.json")
	g.set.StringVar(&g.dbPath, "db", "", "Database `path` (overrides db_path)")
	g.set.StringVar(&g.logLevel, "log-level", "", "Log `level` (overrides log_level)")
	g.set.BoolVarP(&g.help, "help", "h", false, "Show help")

	return g
}

func findCommand(commands []*Command, name string) *Command {
	for _, c := range commands {
		if c.Name() == name {
			return c
		}
	}

	return nil
}

func fprintln(w io.Writer, a ...any) {
	_, _ = fmt.Fprintln(w, a...)
}

func printUsage(w io.Writer, globals *globalFlags, commands []*Command) {
	if commands == nil {
		commands = (&app{}).commands()
	}

	fprintln(w, `typenote - block-structured notes with search and backlinks

Usage: typenote [global flags] <command> [args]

Global flags:`)
	fprintln(w, strings.TrimRight(globals.set.FlagUsages(), "\n"))
	fprintln(w)
	fprintln(w, "Commands:")

	width := usageWidth(commands)
	for _, c := range commands {
		fprintln(w, c.HelpLine(width))
	}
}

// app holds what commands share: resolved config, the logger and a store
// opened on first use.
type app struct {
	cfg   config.Config
	log   zerolog.Logger
	store *store.Store
}

func (a *app) commands() []*Command {
	return []*Command{
		NewCmd(a),
		LsCmd(a),
		ShowCmd(a),
		PatchCmd(a),
		SearchCmd(a),
		BacklinksCmd(a),
		TrashCmd(a),
		ReindexCmd(a),
		ExportCmd(a),
		ImportCmd(a),
		PrintConfigCmd(&a.cfg),
		ShellCmd(a),
	}
}

// open returns the store, opening the configured database on first use.
func (a *app) open(ctx context.Context) (*store.Store, error) {
	if a.store != nil {
		return a.store, nil
	}

	s, err := store.Open(ctx, a.cfg.DBPathAbs, store.WithLogger(a.log))
	if err != nil {
		return nil, err
	}

	a.store = s

	return s, nil
}

func (a *app) close() {
	if a.store != nil {
		_ = a.store.Close()
	}
}
