// Package main provides typenote, block-structured notes with search and backlinks.
package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/calvinalkan/typenote/internal/cli"
)

func main() {
	// A hangup matters for the interactive shell, whose terminal may go away
	// mid-transaction.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	os.Exit(cli.Run(os.Stdin, os.Stdout, os.Stderr, os.Args, environ(), sigCh))
}

// environ returns the process environment as a map; config lookups
// (HOME, XDG_CONFIG_HOME) read from it rather than os.Getenv.
func environ() map[string]string {
	env := make(map[string]string)

	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}

	return env
}
