// Command avail is the builder front-end referenced (but not fully
// specified) by spec.md §6: it walks a set of avail-roots, maintains a
// content-addressed repository per root, and reports on what it finds.
// The parser/grammar that would turn source text into a raw function is
// explicitly out of scope (spec.md §1), so "building" a module here means
// recording its digest and version in the repository rather than
// compiling it; everything downstream of that (the L1 interpreter, the
// L1->L2 translator, the L2 dispatcher) is exercised by pkg/avail and its
// tests instead of by this command.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"

	"github.com/availlang/avail/internal/config"
	"github.com/availlang/avail/internal/repository"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	var opts cliOptions
	switch err := opts.parse(args, stderr); {
	case err == flagParseHandled:
		return config.ExitSuccess
	case err != nil:
		fmt.Fprintln(stderr, err)
		return config.ExitConfigError
	}

	level, err := parseVerbosity(opts.verbosity)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return config.ExitConfigError
	}

	rules, err := loadRenames(opts.renames)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return config.ExitConfigError
	}

	roots := opts.roots
	if len(roots) == 0 {
		roots = splitEnvPathList(os.Getenv(config.EnvAvailRoots))
	}
	if len(roots) == 0 {
		fmt.Fprintln(stderr, "avail: no --avail-roots given and AVAIL_ROOTS is unset")
		return config.ExitConfigError
	}
	if opts.renames == "" {
		if env := os.Getenv(config.EnvAvailRenames); env != "" {
			rules, err = loadRenames(env)
			if err != nil {
				fmt.Fprintln(stderr, err)
				return config.ExitConfigError
			}
		}
	}

	colorize := !opts.quiet && isatty.IsTerminal(os.Stdout.Fd())
	log := newLogger(stdout, level, opts.quiet, colorize)

	start := time.Now()
	exitCode := config.ExitSuccess
	for _, root := range roots {
		repo, err := openRootRepository(root, opts.clearRepositories)
		if err != nil {
			fmt.Fprintf(stderr, "avail: %s: %v\n", root, err)
			return config.ExitIOError
		}

		built, buildErr := buildRoot(repo, root, rules, log)
		if buildErr != nil {
			fmt.Fprintf(stderr, "avail: %s: %v\n", root, buildErr)
			exitCode = config.ExitIOError
		}

		for report := range opts.reports {
			if err := emitReport(stdout, repo, root, report, built); err != nil {
				fmt.Fprintf(stderr, "avail: %s: report %s: %v\n", root, report, err)
				exitCode = config.ExitIOError
			}
		}

		if err := repo.Commit(); err != nil {
			fmt.Fprintf(stderr, "avail: %s: commit: %v\n", root, err)
			exitCode = config.ExitIOError
		}
		if err := repo.Close(); err != nil {
			fmt.Fprintf(stderr, "avail: %s: close: %v\n", root, err)
			exitCode = config.ExitIOError
		}
	}

	if opts.showTiming {
		elapsed := time.Since(start)
		if colorize {
			fmt.Fprintf(stdout, "\x1b[2mtotal: %s\x1b[0m\n", elapsed)
		} else {
			fmt.Fprintf(stdout, "total: %s\n", elapsed)
		}
	}
	return exitCode
}

// repositoryFileName is the single-file SQLite database (internal/
// repository, component C9) each avail-roots entry owns.
const repositoryFileName = ".avail-repository.sqlite"

func openRootRepository(root string, clear bool) (*repository.Repository, error) {
	repo, err := repository.Open(filepath.Join(root, repositoryFileName))
	if err != nil {
		return nil, err
	}
	if clear {
		if err := repo.Clear(); err != nil {
			repo.Close()
			return nil, err
		}
	}
	return repo, nil
}

// buildRoot walks root for recognized source files, records each one's
// digest and a trivial single-compilation artifact in the repository, and
// returns the archive names it touched. With no parser in scope, the
// "artifact" is a placeholder payload standing in for a real compiled
// chunk (spec.md §1 narrows this module to the engine and repository, not
// the front end that would produce L1 chunks from source text).
func buildRoot(repo *repository.Repository, root string, rules []renameRule, log *logger) ([]string, error) {
	var built []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !config.HasSourceExt(path) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		archive := applyRenames(config.TrimSourceExt(filepath.ToSlash(rel)), rules)

		digest, err := repo.DigestForFile(archive, path)
		if err != nil {
			return err
		}
		key := repository.VersionKey{Digest: digest}
		if _, ok, err := repo.GetVersion(archive, key); err != nil {
			return err
		} else if ok {
			log.infof("%s: unchanged, reusing cached version", archive)
			built = append(built, archive)
			return nil
		}

		size := info.Size()
		if err := repo.PutVersion(archive, key, repository.Version{SourceSize: size}); err != nil {
			return err
		}
		if _, err := repo.PutCompilation(archive, key, repository.CompilationKey{}, []byte("placeholder-artifact")); err != nil {
			return err
		}
		log.infof("%s: recorded new version (%s)", archive, humanize.Bytes(uint64(size)))
		built = append(built, archive)
		return nil
	})
	return built, err
}

func emitReport(w io.Writer, repo *repository.Repository, root, report string, built []string) error {
	switch report {
	case "size":
		size, err := repo.Size()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: repository size %s\n", root, humanize.Bytes(uint64(size)))
	case "metadata":
		archives, err := repo.ListArchives()
		if err != nil {
			return err
		}
		for _, archive := range archives {
			dump, err := repo.DumpArchiveYAML(archive)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "# %s\n%s", archive, dump)
		}
	case "disasm", "embed":
		// Both reports operate on compiled L1/L2 chunks, which this
		// command never produces without a parser in scope; list what
		// would be inspected instead of fabricating a disassembly.
		for _, archive := range built {
			fmt.Fprintf(w, "%s: %s report requires a compiled chunk, none produced by this build\n", archive, report)
		}
	default:
		return fmt.Errorf("unknown report %q", report)
	}
	return nil
}

func splitEnvPathList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, string(os.PathListSeparator)) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
