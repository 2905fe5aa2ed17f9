package main

import (
	"fmt"
	"io"
)

// logger gates fmt.Fprintf calls on --verbosity the way SPEC_FULL.md's
// ambient-stack section describes: no structured logging framework, just
// a level check around plain Fprintf calls, matching the teacher's
// debugger_cli.go and cmd/funxy/main.go style.
type logger struct {
	w        io.Writer
	level    verbosityLevel
	quiet    bool
	colorize bool
}

func newLogger(w io.Writer, level verbosityLevel, quiet, colorize bool) *logger {
	return &logger{w: w, level: level, quiet: quiet, colorize: colorize}
}

func (l *logger) infof(format string, args ...any) {
	if l.quiet || l.level < verbosityInfo {
		return
	}
	l.printf(format, args...)
}

func (l *logger) debugf(format string, args ...any) {
	if l.quiet || l.level < verbosityDebug {
		return
	}
	l.printf(format, args...)
}

func (l *logger) warnf(format string, args ...any) {
	if l.quiet || l.level < verbosityWarn {
		return
	}
	l.printf(format, args...)
}

func (l *logger) printf(format string, args ...any) {
	if l.colorize {
		fmt.Fprintf(l.w, "\x1b[2m"+format+"\x1b[0m\n", args...)
		return
	}
	fmt.Fprintf(l.w, format+"\n", args...)
}
