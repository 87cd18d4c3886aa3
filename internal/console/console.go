package console

import (
	"fmt"
	"io"
	"os"

	"github.com/gookit/color"
)

// Global output switches, set once by the CLI from flags and config.
var (
	Debug   bool
	Verbose bool
)

// color helpers
var (
	colInfo    = color.Info
	colWarn    = color.Warn
	colError   = color.Error
	colSuccess = color.HEX("#1976D2")
	colArrow   = color.HEX("#FFEB3B")
)

// Logger is the narrow printing surface library packages depend on.
type Logger interface {
	Printf(format string, args ...any)
}

// Discard is a Logger that drops everything.
var Discard Logger = discard{}

type discard struct{}

func (discard) Printf(string, ...any) {}

// writerLogger prints to an io.Writer without styling.
type writerLogger struct{ w io.Writer }

func (l writerLogger) Printf(format string, args ...any) {
	fmt.Fprintf(l.w, format, args...)
}

// NewLogger returns a Logger writing plain text to w.
func NewLogger(w io.Writer) Logger {
	return writerLogger{w: w}
}

// verboseLogger forwards to stderr only when Verbose or Debug is on.
type verboseLogger struct{}

func (verboseLogger) Printf(format string, args ...any) {
	Verbosef(format, args...)
}

// VerboseLogger returns a Logger gated on the Verbose switch.
func VerboseLogger() Logger { return verboseLogger{} }

// Step prints a "-> message" status line to stdout.
func Step(format string, args ...any) {
	colArrow.Print("-> ")
	colSuccess.Printf(format+"\n", args...)
}

// Info prints an informational line.
func Info(format string, args ...any) {
	colInfo.Printf(format+"\n", args...)
}

// Warn prints a warning line to stderr.
func Warn(format string, args ...any) {
	fmt.Fprint(os.Stderr, colArrow.Sprint("-> "))
	fmt.Fprintln(os.Stderr, colWarn.Sprintf(format, args...))
}

// Error prints an error line to stderr.
func Error(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colError.Sprintf(format, args...))
}

// Verbosef prints to stderr when Verbose or Debug is true.
func Verbosef(format string, args ...any) {
	if Verbose || Debug {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Debugf prints debug messages when Debug is true
func Debugf(format string, args ...any) {
	if Debug {
		fmt.Printf(format, args...)
	}
}
