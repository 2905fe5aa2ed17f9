package repository

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// archiveDump is the plain-struct mirror of an archive's metadata tail
// (spec.md §6 "metadata tail") used only for the --reports=metadata CLI
// debugging aid; grounded on the teacher's YAML builtin
// (internal/evaluator/builtins_yaml.go's yaml.Marshal(value) call) for
// dumping a Go value straight to YAML with no custom tag wiring.
type archiveDump struct {
	Archive      string            `yaml:"archive"`
	Versions     []versionDump     `yaml:"versions"`
}

type versionDump struct {
	IsPackage   bool             `yaml:"isPackage"`
	Digest      string           `yaml:"digest"`
	SourceSize  int64            `yaml:"sourceSize"`
	Imports     []string         `yaml:"imports,omitempty"`
	EntryPoints []string         `yaml:"entryPoints,omitempty"`
	Compilations []compilationDump `yaml:"compilations"`
}

type compilationDump struct {
	CompilationKey string `yaml:"compilationKey"`
	Timestamp      int64  `yaml:"timestamp"`
}

// DumpArchiveYAML renders every version and compilation known for archive
// as YAML, for the CLI's --reports=metadata flag (SPEC_FULL.md §3).
func (r *Repository) DumpArchiveYAML(archive string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	dump := archiveDump{Archive: archive}

	rows, err := r.db.Query(
		`SELECT is_package, digest, source_size, imports, entry_points
		 FROM versions WHERE archive = ?`, archive)
	if err != nil {
		return "", fmt.Errorf("repository: dump versions for %s: %w", archive, err)
	}
	type versionRow struct {
		isPackage  int
		digest     string
		sourceSize int64
		imports    string
		entries    string
	}
	var versionRows []versionRow
	for rows.Next() {
		var vr versionRow
		if err := rows.Scan(&vr.isPackage, &vr.digest, &vr.sourceSize, &vr.imports, &vr.entries); err != nil {
			rows.Close()
			return "", fmt.Errorf("repository: scan version for %s: %w", archive, err)
		}
		versionRows = append(versionRows, vr)
	}
	rows.Close()

	for _, vr := range versionRows {
		vd := versionDump{
			IsPackage:   vr.isPackage != 0,
			Digest:      vr.digest,
			SourceSize:  vr.sourceSize,
			Imports:     splitNonEmpty(vr.imports),
			EntryPoints: splitNonEmpty(vr.entries),
		}
		compRows, err := r.db.Query(
			`SELECT comp_key, timestamp FROM compilations
			 WHERE archive = ? AND is_package = ? AND digest = ?
			 ORDER BY timestamp`, archive, vr.isPackage, vr.digest)
		if err != nil {
			return "", fmt.Errorf("repository: dump compilations for %s: %w", archive, err)
		}
		for compRows.Next() {
			var cd compilationDump
			if err := compRows.Scan(&cd.CompilationKey, &cd.Timestamp); err != nil {
				compRows.Close()
				return "", fmt.Errorf("repository: scan compilation for %s: %w", archive, err)
			}
			vd.Compilations = append(vd.Compilations, cd)
		}
		compRows.Close()
		dump.Versions = append(dump.Versions, vd)
	}

	out, err := yaml.Marshal(dump)
	if err != nil {
		return "", fmt.Errorf("repository: marshal archive dump: %w", err)
	}
	return string(out), nil
}
