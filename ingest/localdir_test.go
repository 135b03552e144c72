package ingest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stageflow/stageflow/engine"
	"github.com/stageflow/stageflow/errors"
)

func TestDirSourceStagesNormalizedCopies(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	content := "Heart Rate, Recorded At\n72,2026-01-02\n"
	if err := os.WriteFile(filepath.Join(src, "hr.csv"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewDirSource("wearable", src, dest)
	log := testLogger()
	paths, counts, err := NewRunner(log, s).RunDetailed(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(paths) != 1 || counts["wearable"] != 1 {
		t.Fatalf("paths=%v counts=%v, want one file", paths, counts)
	}
	if !engine.IsTempPath(paths[0]) {
		t.Fatalf("staged path %q is not temporary", paths[0])
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	header := strings.SplitN(string(data), "\n", 2)[0]
	if header != "heart_rate,recorded_at" {
		t.Fatalf("header = %q, want normalized columns", header)
	}
}

func TestDirSourceEmptyDirectoryIsValidBatch(t *testing.T) {
	s := NewDirSource("empty", t.TempDir(), t.TempDir())
	log := testLogger()
	paths, err := NewRunner(log, s).Run(context.Background())
	if err != nil {
		t.Fatalf("empty batch must succeed: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("paths = %v, want none", paths)
	}
}

func TestDirSourceMissingDirectoryFailsConnect(t *testing.T) {
	s := NewDirSource("gone", filepath.Join(t.TempDir(), "nope"), t.TempDir())
	log := testLogger()
	_, err := NewRunner(log, s).Run(context.Background())
	if !errors.HasCode(err, errors.CodeIngestionFailed) {
		t.Fatalf("error = %v, want INGESTION_FAILED", err)
	}
}

func TestStageAdapterReportsArtifactsAndSources(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	for _, name := range []string{"a.csv", "b.csv"} {
		if err := os.WriteFile(filepath.Join(src, name), []byte("x\n1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	log := testLogger()
	runner := NewRunner(log, NewDirSource("drops", src, dest))

	res, err := Stage(runner, "raw_data").Execute(context.Background())
	if err != nil {
		t.Fatalf("stage: %v", err)
	}
	if got := len(res.Artifacts["raw_data"]); got != 2 {
		t.Fatalf("artifacts = %d, want 2", got)
	}
	if res.Metrics["files_ingested"] != 2 {
		t.Fatalf("files_ingested = %v, want 2", res.Metrics["files_ingested"])
	}
	if res.Sources["drops"] != 2 {
		t.Fatalf("sources = %v, want drops:2", res.Sources)
	}
}
