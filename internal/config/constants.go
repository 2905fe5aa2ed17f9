// Package config holds process-wide constants and the small set of
// runtime flags that other packages consult instead of threading a
// settings struct through every call.
package config

// Version is the current engine version, set at build time via
// -ldflags "-X github.com/availlang/avail/internal/config.Version=...".
var Version = "0.1.0"

// SourceFileExt is the canonical extension for Avail module source files.
// The parser/grammar that consumes this extension is out of scope for this
// module (see spec.md §1); the repository and CLI still need to recognize
// module file names.
const SourceFileExt = ".avail"

// SourceFileExtensions lists all extensions the loader accepts for a module.
var SourceFileExtensions = []string{".avail", ".avail-chunk"}

// TrimSourceExt removes a recognized source extension from name, if present.
func TrimSourceExt(name string) string {
	for _, ext := range SourceFileExtensions {
		if len(name) >= len(ext) && name[len(name)-len(ext):] == ext {
			return name[:len(name)-len(ext)]
		}
	}
	return name
}

// HasSourceExt reports whether path ends with a recognized source extension.
func HasSourceExt(path string) bool {
	for _, ext := range SourceFileExtensions {
		if len(path) >= len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// IsTestMode is a process-wide flag for test binaries; nothing in this
// module sets or reads it.
var IsTestMode = false

// Environment variable names recognized by the CLI (spec.md §6).
const (
	EnvAvailRoots   = "AVAIL_ROOTS"
	EnvAvailRenames = "AVAIL_RENAMES"
)

// Exit codes for the CLI front-end (spec.md §6).
const (
	ExitSuccess      = 0
	ExitCompileError = 1
	ExitIOError      = 2
	ExitConfigError  = 3
)

// Default tuning constants shared by the interpreter and translator.
const (
	// DefaultReoptimizationThreshold is the invocation countdown a freshly
	// translated level-0 raw function starts with before being
	// re-translated to level 1 (spec.md §4.6).
	DefaultReoptimizationThreshold = 10

	// DefaultCompilationsPerVersion bounds the repository's per-version
	// compilation LRU (spec.md §4.9).
	DefaultCompilationsPerVersion = 10

	// InitialStackSize is not consulted anywhere in this module: a
	// continuation's slot vector starts at args + locals + the chunk's
	// MaxStackDepth.
	InitialStackSize = 256

	// StackGrowthIncrement is how much a continuation's stack grows by
	// when it runs out of room, mirroring the teacher's incremental
	// growth strategy instead of a fixed ceiling panic.
	StackGrowthIncrement = 256

	// MaxStackDepth is not consulted anywhere in this module, so neither
	// stack growth nor recursion depth is bounded by it.
	MaxStackDepth = 1 << 20
)
