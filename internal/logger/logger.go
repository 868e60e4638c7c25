package logger

import (
	"io"
	"log"
	"os"

	"github.com/fatih/color"
)

// Logger writes leveled lines. Info and Warn go to stdout, Error to stderr.
type Logger struct {
	info  *log.Logger
	warn  *log.Logger
	error *log.Logger
}

func New() *Logger {
	return NewWithWriters(os.Stdout, os.Stderr)
}

// NewWithWriters is New with explicit sinks; pass io.Discard to mute a level group.
func NewWithWriters(out, errOut io.Writer) *Logger {
	return &Logger{
		info:  log.New(out, color.GreenString("[INFO] "), log.Ldate|log.Ltime),
		warn:  log.New(out, color.YellowString("[WARN] "), log.Ldate|log.Ltime),
		error: log.New(errOut, color.RedString("[ERROR] "), log.Ldate|log.Ltime),
	}
}

// Quiet keeps warnings and errors but drops info lines.
func Quiet() *Logger {
	l := New()
	l.info.SetOutput(io.Discard)
	return l
}

// Discard drops everything. Handy in tests.
func Discard() *Logger {
	return NewWithWriters(io.Discard, io.Discard)
}

func (l *Logger) Info(format string, args ...interface{}) {
	l.info.Printf(format, args...)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.warn.Printf(format, args...)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.error.Printf(format, args...)
}
