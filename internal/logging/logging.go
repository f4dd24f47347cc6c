// Package logging writes leveled diagnostics to stderr.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Logger writes one line per message. Debug messages are dropped unless
// verbose is set. It is safe for concurrent use.
type Logger struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool

	debug *color.Color
	warn  *color.Color
	err   *color.Color
}

// New creates a logger writing to w. Colors are enabled when w is a terminal.
func New(w io.Writer, verbose bool) *Logger {
	l := &Logger{
		w:       w,
		verbose: verbose,
		debug:   color.New(color.Faint),
		warn:    color.New(color.FgYellow),
		err:     color.New(color.FgRed),
	}
	if !terminal(w) {
		l.debug.DisableColor()
		l.warn.DisableColor()
		l.err.DisableColor()
	}
	return l
}

// Stderr returns a logger for os.Stderr.
func Stderr(verbose bool) *Logger {
	return New(os.Stderr, verbose)
}

// Verbose reports whether debug messages are written.
func (l *Logger) Verbose() bool {
	return l.verbose
}

// Debugf logs a message shown only in verbose mode.
func (l *Logger) Debugf(format string, args ...any) {
	if !l.verbose {
		return
	}
	l.write(l.debug, "", format, args...)
}

// Infof logs a plain message.
func (l *Logger) Infof(format string, args ...any) {
	l.write(nil, "", format, args...)
}

// Warnf logs a recoverable problem.
func (l *Logger) Warnf(format string, args ...any) {
	l.write(l.warn, "warning: ", format, args...)
}

// Errorf logs a failure.
func (l *Logger) Errorf(format string, args ...any) {
	l.write(l.err, "error: ", format, args...)
}

func (l *Logger) write(c *color.Color, prefix, format string, args ...any) {
	msg := prefix + fmt.Sprintf(format, args...) + "\n"
	l.mu.Lock()
	defer l.mu.Unlock()
	if c == nil {
		fmt.Fprint(l.w, msg)
		return
	}
	c.Fprint(l.w, msg)
}

func terminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Terminal reports whether w is an interactive terminal.
func Terminal(w io.Writer) bool {
	return terminal(w)
}
