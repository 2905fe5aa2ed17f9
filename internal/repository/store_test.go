package repository

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/availlang/avail/internal/config"
	"github.com/availlang/avail/internal/types"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	dir := t.TempDir()
	repo, err := Open(filepath.Join(dir, "repo.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// TestValueRoundTripTuple drives scenario S2: serialize then deserialize
// the tuple <1, "two", <3, 4>>; the decoded value must be equal and carry
// the same shape.
func TestValueRoundTripTuple(t *testing.T) {
	inner := types.ObjectValue(types.NewTuple([]types.Value{
		types.ObjectValue(types.NewInteger(3)),
		types.ObjectValue(types.NewInteger(4)),
	}))
	outer := types.ObjectValue(types.NewTuple([]types.Value{
		types.ObjectValue(types.NewInteger(1)),
		types.ObjectValue(types.NewString("two")),
		inner,
	}))

	blob, err := MarshalValue(outer)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := UnmarshalValue(blob)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equals(outer) {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded, outer)
	}
}

// TestClearYieldsEmptyRepository drives spec.md §8 "clear() followed by
// reopen yields an empty repository."
func TestClearYieldsEmptyRepository(t *testing.T) {
	repo := openTestRepository(t)
	srcPath := filepath.Join(t.TempDir(), "A.avail")
	if err := os.WriteFile(srcPath, []byte("module A"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	digest, err := repo.DigestForFile("A", srcPath)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	key := VersionKey{IsPackage: false, Digest: digest}
	if err := repo.PutVersion("A", key, Version{SourceSize: 8}); err != nil {
		t.Fatalf("put version: %v", err)
	}

	if err := repo.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}

	if _, ok, err := repo.GetVersion("A", key); err != nil || ok {
		t.Fatalf("expected no version after clear, got ok=%v err=%v", ok, err)
	}
}

// TestRebuildAvoidance drives scenario S6: module A imports B; a full
// compile records compilationKey = <tB>. Rebuilding without changing B
// yields the same versionKey and compilationKey, so the prior compilation
// is found rather than rebuilt.
func TestRebuildAvoidance(t *testing.T) {
	repo := openTestRepository(t)

	bSrc := filepath.Join(t.TempDir(), "B.avail")
	if err := os.WriteFile(bSrc, []byte("module B"), 0o644); err != nil {
		t.Fatalf("write B: %v", err)
	}
	bDigest, err := repo.DigestForFile("B", bSrc)
	if err != nil {
		t.Fatalf("digest B: %v", err)
	}
	bKey := VersionKey{IsPackage: false, Digest: bDigest}
	if err := repo.PutVersion("B", bKey, Version{SourceSize: 8}); err != nil {
		t.Fatalf("put version B: %v", err)
	}
	bComp, err := repo.PutCompilation("B", bKey, CompilationKey{}, []byte("compiled-B-v1"))
	if err != nil {
		t.Fatalf("put compilation B: %v", err)
	}

	aSrc := filepath.Join(t.TempDir(), "A.avail")
	if err := os.WriteFile(aSrc, []byte("module A imports B"), 0o644); err != nil {
		t.Fatalf("write A: %v", err)
	}
	aDigest, err := repo.DigestForFile("A", aSrc)
	if err != nil {
		t.Fatalf("digest A: %v", err)
	}
	aKey := VersionKey{IsPackage: false, Digest: aDigest}
	if err := repo.PutVersion("A", aKey, Version{SourceSize: 19, Imports: []string{"B"}}); err != nil {
		t.Fatalf("put version A: %v", err)
	}
	compKey := CompilationKey{bComp.Timestamp}
	if _, err := repo.PutCompilation("A", aKey, compKey, []byte("compiled-A-v1")); err != nil {
		t.Fatalf("put compilation A: %v", err)
	}

	// Rebuild without changing B: digestForFile is cached by mtime, so the
	// version key is identical, and the same compilation key is found
	// rather than recompiled.
	rebuiltDigest, err := repo.DigestForFile("A", aSrc)
	if err != nil {
		t.Fatalf("digest A again: %v", err)
	}
	if rebuiltDigest != aDigest {
		t.Fatalf("expected stable digest across rebuild, got %x want %x", rebuiltDigest, aDigest)
	}
	existing, ok, err := repo.GetCompilation("A", aKey, compKey)
	if err != nil {
		t.Fatalf("get compilation: %v", err)
	}
	if !ok {
		t.Fatalf("expected to find the prior compilation for an unchanged predecessor")
	}
	if existing.Timestamp == 0 {
		t.Fatalf("expected a real timestamp on the stored compilation")
	}
}

// TestCompilationLRUEviction drives spec.md §4.9's bounded-LRU rule:
// putting more than the default bound evicts the oldest compilations.
func TestCompilationLRUEviction(t *testing.T) {
	repo := openTestRepository(t)
	src := filepath.Join(t.TempDir(), "A.avail")
	if err := os.WriteFile(src, []byte("module A"), 0o644); err != nil {
		t.Fatalf("write A: %v", err)
	}
	digest, err := repo.DigestForFile("A", src)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	key := VersionKey{IsPackage: false, Digest: digest}
	if err := repo.PutVersion("A", key, Version{SourceSize: 8}); err != nil {
		t.Fatalf("put version: %v", err)
	}

	var firstKey CompilationKey
	for i := 0; i < config.DefaultCompilationsPerVersion+3; i++ {
		compKey := CompilationKey{int64(i)}
		if i == 0 {
			firstKey = compKey
		}
		if _, err := repo.PutCompilation("A", key, compKey, []byte("artifact")); err != nil {
			t.Fatalf("put compilation %d: %v", i, err)
		}
	}

	if _, ok, err := repo.GetCompilation("A", key, firstKey); err != nil {
		t.Fatalf("get evicted compilation: %v", err)
	} else if ok {
		t.Fatalf("expected the oldest compilation to have been evicted")
	}
}

// TestCleanModulesUnder drives spec.md §4.9's cleanModulesUnder: clearing
// "pkg" removes "pkg" and "pkg/Sub" but leaves unrelated archives.
func TestCleanModulesUnder(t *testing.T) {
	repo := openTestRepository(t)
	dir := t.TempDir()

	for _, name := range []string{"pkg", "pkg/Sub", "other"} {
		src := filepath.Join(dir, filepath.FromSlash(name)+".avail")
		if err := os.MkdirAll(filepath.Dir(src), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(src, []byte("module "+name), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		digest, err := repo.DigestForFile(name, src)
		if err != nil {
			t.Fatalf("digest %s: %v", name, err)
		}
		if err := repo.PutVersion(name, VersionKey{Digest: digest}, Version{SourceSize: 8}); err != nil {
			t.Fatalf("put version %s: %v", name, err)
		}
	}

	if err := repo.CleanModulesUnder("pkg"); err != nil {
		t.Fatalf("clean: %v", err)
	}

	for name, wantPresent := range map[string]bool{"pkg": false, "pkg/Sub": false, "other": true} {
		src := filepath.Join(dir, filepath.FromSlash(name)+".avail")
		digest, err := repo.DigestForFile(name, src)
		if err != nil {
			t.Fatalf("digest %s: %v", name, err)
		}
		_, ok, err := repo.GetVersion(name, VersionKey{Digest: digest})
		if err != nil {
			t.Fatalf("get version %s: %v", name, err)
		}
		if ok != wantPresent {
			t.Fatalf("module %s: present=%v, want %v", name, ok, wantPresent)
		}
	}
}

// TestCommitClearsDirtyFlag drives spec.md §4.9's commit/dirty contract.
func TestCommitClearsDirtyFlag(t *testing.T) {
	repo := openTestRepository(t)
	src := filepath.Join(t.TempDir(), "A.avail")
	if err := os.WriteFile(src, []byte("module A"), 0o644); err != nil {
		t.Fatalf("write A: %v", err)
	}
	if _, err := repo.DigestForFile("A", src); err != nil {
		t.Fatalf("digest: %v", err)
	}
	if !repo.dirty {
		t.Fatalf("expected repository to be dirty after a caching write")
	}
	if err := repo.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if repo.dirty {
		t.Fatalf("expected commit to clear the dirty flag")
	}
}

func TestDumpArchiveYAMLIncludesVersionAndCompilation(t *testing.T) {
	repo := openTestRepository(t)
	src := filepath.Join(t.TempDir(), "A.avail")
	if err := os.WriteFile(src, []byte("module A"), 0o644); err != nil {
		t.Fatalf("write A: %v", err)
	}
	digest, err := repo.DigestForFile("A", src)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	key := VersionKey{Digest: digest}
	if err := repo.PutVersion("A", key, Version{SourceSize: 8, EntryPoints: []string{"Start"}}); err != nil {
		t.Fatalf("put version: %v", err)
	}
	if _, err := repo.PutCompilation("A", key, CompilationKey{}, []byte("artifact")); err != nil {
		t.Fatalf("put compilation: %v", err)
	}

	out, err := repo.DumpArchiveYAML("A")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if out == "" {
		t.Fatalf("expected non-empty YAML dump")
	}
}
