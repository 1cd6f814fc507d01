// Package logging builds the per-component loggers used across
// restaurant-sync. Every component gets a standard *log.Logger with a
// bracketed prefix such as "[sync] "; output goes to stderr, to a rotating
// file, or nowhere.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where log output goes.
type Options struct {
	// File receives logs with size-based rotation. Empty means stderr.
	File string

	// Rotation limits for File
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int

	// Quiet discards logs that would go to stderr. File output is kept.
	Quiet bool
}

// Factory hands out component loggers that share one output.
type Factory struct {
	out    io.Writer
	closer io.Closer
}

// New creates a factory for opts. Close it to release the log file.
func New(opts Options) (*Factory, error) {
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		return &Factory{out: lj, closer: lj}, nil
	}
	if opts.Quiet {
		return &Factory{out: io.Discard}, nil
	}
	return &Factory{out: os.Stderr}, nil
}

// Discard returns a factory whose loggers write nothing.
func Discard() *Factory {
	return &Factory{out: io.Discard}
}

// Logger returns a logger for component, prefixed "[component] ".
func (f *Factory) Logger(component string) *log.Logger {
	return log.New(f.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the shared output.
func (f *Factory) Writer() io.Writer {
	return f.out
}

// Close flushes and closes the log file, if any.
func (f *Factory) Close() error {
	if f == nil || f.closer == nil {
		return nil
	}
	return f.closer.Close()
}
