// Package logging builds the zerolog logger shared by the CLI and the store.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const filePerm = 0o640

// Builder collects logger settings. The zero value logs warnings and above
// to stderr in console format.
type Builder struct {
	writer  io.Writer
	path    string
	level   string
	console bool
}

// New returns a builder writing human-readable lines to stderr.
func New() *Builder {
	return &Builder{writer: os.Stderr, console: true, level: "warn"}
}

// Level sets the minimum level by name ("trace" ... "panic", "disabled").
func (b *Builder) Level(level string) *Builder {
	b.level = level
	return b
}

// Writer sends output to w instead of stderr.
func (b *Builder) Writer(w io.Writer) *Builder {
	b.writer = w
	return b
}

// File appends JSON lines to path instead of the writer. Empty keeps the writer.
func (b *Builder) File(path string) *Builder {
	b.path = path
	return b
}

// Console toggles the human-readable console format.
func (b *Builder) Console(on bool) *Builder {
	b.console = on
	return b
}

// Log is a built logger plus the file it may own.
type Log struct {
	Logger zerolog.Logger
	file   *os.File
}

// Make builds the logger.
func (b *Builder) Make() (*Log, error) {
	level, err := zerolog.ParseLevel(b.level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	if level == zerolog.NoLevel {
		level = zerolog.WarnLevel
	}

	l := &Log{}
	w := b.writer

	switch {
	case b.path != "":
		err = os.MkdirAll(filepath.Dir(b.path), 0o750)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}

		l.file, err = os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
		if err != nil {
			return nil, fmt.Errorf("log file: %w", err)
		}

		w = zerolog.SyncWriter(l.file)
	case b.console:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
	}

	l.Logger = zerolog.New(w).Level(level).With().Timestamp().Logger()

	return l, nil
}

// Close closes the log file, if any.
func (l *Log) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	return l.file.Close()
}
