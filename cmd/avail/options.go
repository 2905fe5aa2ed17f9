package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
)

// cliOptions holds the flags spec.md §6 documents as the CLI's external
// surface.
type cliOptions struct {
	roots             pathList
	renames           string
	clearRepositories bool
	quiet             bool
	showTiming        bool
	verbosity         string
	reports           reportSet
}

// flagParseHandled is returned by parse when flag.Parse already printed
// usage/version output and the caller should exit 0 without further work
// (e.g. -h).
var flagParseHandled = errors.New("flags handled")

func (o *cliOptions) parse(args []string, stderr io.Writer) error {
	o.reports = reportSet{}
	fs := flag.NewFlagSet("avail", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Var(&o.roots, "avail-roots", "colon-separated list of module root directories")
	fs.StringVar(&o.renames, "renames", "", "path to a module rename rules file")
	fs.BoolVar(&o.clearRepositories, "clear-repositories", false, "discard and recreate each root's repository before building")
	fs.BoolVar(&o.quiet, "quiet", false, "suppress informational output")
	fs.BoolVar(&o.showTiming, "show-timing", false, "print elapsed build time")
	fs.StringVar(&o.verbosity, "verbosity", "warn", "error, warn, info, or debug")
	fs.Var(o.reports, "reports", "comma-separated reports: size, metadata, disasm, embed")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return flagParseHandled
		}
		return fmt.Errorf("avail: %w", err)
	}
	return nil
}
