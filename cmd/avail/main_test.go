package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/availlang/avail/internal/config"
)

func writeSource(t *testing.T, root, name, body string) {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRunRecordsVersionsAndReportsSize(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "A.avail", "module A")
	writeSource(t, root, "Sub/B.avail", "module B")

	var stdout, stderr bytes.Buffer
	code := run([]string{"--avail-roots=" + root, "--reports=size,metadata", "--quiet"}, &stdout, &stderr)
	if code != config.ExitSuccess {
		t.Fatalf("run: exit %d, stderr: %s", code, stderr.String())
	}
	if stdout.Len() == 0 {
		t.Fatalf("expected non-empty report output")
	}
	if !bytes.Contains(stdout.Bytes(), []byte("repository size")) {
		t.Fatalf("expected a size report line, got: %s", stdout.String())
	}
}

func TestRunIsIdempotentAcrossRebuilds(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "A.avail", "module A")

	var out1, out2, stderr bytes.Buffer
	if code := run([]string{"--avail-roots=" + root, "--quiet", "--verbosity=info"}, &out1, &stderr); code != config.ExitSuccess {
		t.Fatalf("first run: exit %d", code)
	}
	if code := run([]string{"--avail-roots=" + root, "--verbosity=info"}, &out2, &stderr); code != config.ExitSuccess {
		t.Fatalf("second run: exit %d", code)
	}
	if !bytes.Contains(out2.Bytes(), []byte("unchanged")) {
		t.Fatalf("expected the second run to report the cached version as unchanged, got: %s", out2.String())
	}
}

func TestRunRejectsUnknownReport(t *testing.T) {
	root := t.TempDir()
	var stdout, stderr bytes.Buffer
	code := run([]string{"--avail-roots=" + root, "--reports=bogus"}, &stdout, &stderr)
	if code != config.ExitConfigError {
		t.Fatalf("expected ExitConfigError for an unknown report, got %d", code)
	}
}

func TestRunRequiresRootsOrEnv(t *testing.T) {
	t.Setenv(config.EnvAvailRoots, "")
	var stdout, stderr bytes.Buffer
	code := run(nil, &stdout, &stderr)
	if code != config.ExitConfigError {
		t.Fatalf("expected ExitConfigError with no roots given, got %d", code)
	}
}

func TestRunHonorsClearRepositories(t *testing.T) {
	root := t.TempDir()
	writeSource(t, root, "A.avail", "module A")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"--avail-roots=" + root, "--quiet"}, &stdout, &stderr); code != config.ExitSuccess {
		t.Fatalf("first run: exit %d", code)
	}

	stdout.Reset()
	code := run([]string{"--avail-roots=" + root, "--clear-repositories", "--verbosity=info"}, &stdout, &stderr)
	if code != config.ExitSuccess {
		t.Fatalf("second run: exit %d", code)
	}
	if bytes.Contains(stdout.Bytes(), []byte("unchanged")) {
		t.Fatalf("expected --clear-repositories to force a fresh version, got: %s", stdout.String())
	}
}

func TestApplyRenames(t *testing.T) {
	rules := []renameRule{{from: "A", to: "Renamed"}}
	if got := applyRenames("A", rules); got != "Renamed" {
		t.Fatalf("applyRenames: got %q, want Renamed", got)
	}
	if got := applyRenames("Other", rules); got != "Other" {
		t.Fatalf("applyRenames: expected unmatched names to pass through, got %q", got)
	}
}

func TestLoadRenamesParsesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "renames.txt")
	body := "# comment\nA=B\n\nC=D\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write renames: %v", err)
	}
	rules, err := loadRenames(path)
	if err != nil {
		t.Fatalf("loadRenames: %v", err)
	}
	if len(rules) != 2 || rules[0].from != "A" || rules[0].to != "B" {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}
