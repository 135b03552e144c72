package hasher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stageflow/stageflow/errors"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestHashFile_Deterministic(t *testing.T) {
	path := writeFile(t, t.TempDir(), "data.csv", "a,b,c\n1,2,3\n")

	h1, err := HashFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := HashFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("same file hashed differently: %s vs %s", h1, h2)
	}
	if !strings.HasPrefix(h1, "sha256:") {
		t.Fatalf("digest missing algorithm prefix: %s", h1)
	}
	if len(h1) != len("sha256:")+64 {
		t.Fatalf("expected 64 hex chars, got %q", h1)
	}
}

func TestHashFile_SingleByteChange(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.csv", "a,b,c\n1,2,3\n")
	b := writeFile(t, dir, "b.csv", "a,b,c\n1,2,4\n")

	ha, err := HashFile(a)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	hb, err := HashFile(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ha == hb {
		t.Fatal("one-byte change did not change the digest")
	}
}

func TestHashFile_Missing(t *testing.T) {
	_, err := HashFile(filepath.Join(t.TempDir(), "nope.csv"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.HasCode(err, errors.CodeHashIO) {
		t.Fatalf("expected HASH_IO, got %v", err)
	}
}

func TestHashBytes_MatchesFile(t *testing.T) {
	content := "hello pipeline"
	path := writeFile(t, t.TempDir(), "x.txt", content)

	fromFile, err := HashFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromBytes := HashBytes([]byte(content)); fromBytes != fromFile {
		t.Fatalf("HashBytes and HashFile disagree: %s vs %s", fromBytes, fromFile)
	}
}

func TestHashStrings_OrderSensitive(t *testing.T) {
	h1 := HashStrings([]string{"alpha", "beta"})
	h2 := HashStrings([]string{"beta", "alpha"})
	if h1 == h2 {
		t.Fatal("permutation produced the same digest")
	}
}

func TestHashStrings_BoundaryAmbiguity(t *testing.T) {
	// Length framing must keep element boundaries distinct.
	h1 := HashStrings([]string{"ab", "c"})
	h2 := HashStrings([]string{"a", "bc"})
	if h1 == h2 {
		t.Fatal("element boundaries are ambiguous")
	}
}

func TestHashStrings_Deterministic(t *testing.T) {
	in := []string{"normalization", "v3", "sha256:abc"}
	if HashStrings(in) != HashStrings(in) {
		t.Fatal("same sequence hashed differently")
	}
}

func TestHashLogic(t *testing.T) {
	if HashLogic("normalize@v1") == HashLogic("normalize@v2") {
		t.Fatal("logic version bump did not change the digest")
	}
}

func TestHashDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.csv", "1")
	writeFile(t, dir, "two.csv", "2")

	h1, err := HashDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h2, err := HashDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h1 != h2 {
		t.Fatal("directory hashed differently across runs")
	}

	writeFile(t, dir, "two.csv", "2-changed")
	h3, err := HashDir(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h3 == h1 {
		t.Fatal("content change did not change the directory digest")
	}
}

func TestHashPath_FileAndDir(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "f.txt", "data")

	fromPath, err := HashPath(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	fromFile, err := HashFile(file)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fromPath != fromFile {
		t.Fatal("HashPath on a file should match HashFile")
	}

	if _, err := HashPath(dir); err != nil {
		t.Fatalf("HashPath on a directory: %v", err)
	}
}
