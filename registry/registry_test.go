package registry

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stageflow/stageflow/logger"
)

func openTest(t *testing.T) *Registry {
	t.Helper()
	log := logger.New(&logger.Config{Level: "error", Format: "json", Output: "stderr", Timestamp: true}, "test")
	r, err := Open(filepath.Join(t.TempDir(), "registry.db"), log)
	if err != nil {
		t.Fatalf("opening registry: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func sample(id, version string, created time.Time) *Artifact {
	return &Artifact{
		ID:             id,
		Version:        version,
		ContentHash:    "sha256:aabb" + version,
		Path:           "/data/" + id + "_" + version + ".csv",
		Type:           TypeNormalized,
		Format:         "csv",
		CreatedAt:      created,
		CreatedByStage: "normalization",
		CreatedByRun:   "run-20250101-abcd1234",
		Inputs:         []string{"sha256:input-" + version},
		Metadata:       map[string]any{"rows": float64(10)},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := openTest(t)
	a := sample("normalized_bp", "v1", time.Now().UTC())
	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Get("normalized_bp", "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("expected artifact, got nil")
	}
	if got.ContentHash != a.ContentHash {
		t.Fatalf("content hash mismatch: %s vs %s", got.ContentHash, a.ContentHash)
	}
	if len(got.Inputs) != 1 || got.Inputs[0] != "sha256:input-v1" {
		t.Fatalf("inputs not preserved: %v", got.Inputs)
	}
	if got.Metadata["rows"] != float64(10) {
		t.Fatalf("metadata not preserved: %v", got.Metadata)
	}
}

func TestGet_Miss(t *testing.T) {
	r := openTest(t)
	got, err := r.Get("ghost", "v1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown artifact, got %+v", got)
	}
}

func TestRegister_IdempotentUpsert(t *testing.T) {
	r := openTest(t)
	now := time.Now().UTC()

	a := sample("normalized_bp", "v1", now)
	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}

	a.ContentHash = "sha256:ffff"
	if err := r.Register(a); err != nil {
		t.Fatalf("re-register: %v", err)
	}

	got, err := r.Get("normalized_bp", "v1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ContentHash != "sha256:ffff" {
		t.Fatalf("upsert did not overwrite: %s", got.ContentHash)
	}

	next, err := r.NextVersion("normalized_bp")
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if next != "v2" {
		t.Fatalf("re-registering v1 must not bump versions, got %s", next)
	}
}

func TestLatest_Ordering(t *testing.T) {
	r := openTest(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	if err := r.Register(sample("hr", "v1", base)); err != nil {
		t.Fatalf("register v1: %v", err)
	}
	if err := r.Register(sample("hr", "v2", base.Add(time.Hour))); err != nil {
		t.Fatalf("register v2: %v", err)
	}

	got, err := r.Latest("hr")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Version != "v2" {
		t.Fatalf("expected v2, got %s", got.Version)
	}

	// Empty version on Get resolves to latest.
	got, err = r.Get("hr", "")
	if err != nil {
		t.Fatalf("get latest: %v", err)
	}
	if got.Version != "v2" {
		t.Fatalf("expected v2, got %s", got.Version)
	}
}

func TestLatest_NumericVersionTieBreak(t *testing.T) {
	r := openTest(t)
	created := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	// Same creation timestamp: the tie-break must compare the numeric
	// suffix, not the string, so v10 beats v9.
	for _, v := range []string{"v9", "v10", "snapshot"} {
		if err := r.Register(sample("hr", v, created)); err != nil {
			t.Fatalf("register %s: %v", v, err)
		}
	}

	got, err := r.Latest("hr")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if got.Version != "v10" {
		t.Fatalf("expected v10, got %s", got.Version)
	}
}

func TestGetByHash(t *testing.T) {
	r := openTest(t)
	a := sample("sleep", "v1", time.Now().UTC())
	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.GetByHash(a.ContentHash)
	if err != nil {
		t.Fatalf("get by hash: %v", err)
	}
	if got == nil || got.ID != "sleep" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestGetByInputHash(t *testing.T) {
	r := openTest(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	old := sample("norm", "v1", base)
	old.Inputs = []string{"sha256:cache-key-1"}
	if err := r.Register(old); err != nil {
		t.Fatalf("register v1: %v", err)
	}

	newer := sample("norm", "v2", base.Add(time.Hour))
	newer.Inputs = []string{"sha256:cache-key-1", "sha256:cache-key-2"}
	if err := r.Register(newer); err != nil {
		t.Fatalf("register v2: %v", err)
	}

	got, err := r.GetByInputHash("sha256:cache-key-1")
	if err != nil {
		t.Fatalf("get by input hash: %v", err)
	}
	if got == nil {
		t.Fatal("expected cache hit")
	}
	if got.Version != "v2" {
		t.Fatalf("expected most recent match v2, got %s", got.Version)
	}

	miss, err := r.GetByInputHash("sha256:never-seen")
	if err != nil {
		t.Fatalf("miss must not be an error: %v", err)
	}
	if miss != nil {
		t.Fatalf("expected nil on miss, got %+v", miss)
	}
}

func TestNextVersion(t *testing.T) {
	r := openTest(t)

	v, err := r.NextVersion("unknown")
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if v != "v1" {
		t.Fatalf("expected v1 for unknown id, got %s", v)
	}

	if err := r.Register(sample("bp", "v1", time.Now().UTC())); err != nil {
		t.Fatalf("register: %v", err)
	}
	v, err = r.NextVersion("bp")
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if v != "v2" {
		t.Fatalf("expected v2 after v1, got %s", v)
	}
}

func TestNextVersion_IgnoresMalformed(t *testing.T) {
	r := openTest(t)
	now := time.Now().UTC()

	for _, version := range []string{"v3", "beta", "v-x", "2", "vv7"} {
		if err := r.Register(sample("bp", version, now)); err != nil {
			t.Fatalf("register %s: %v", version, err)
		}
	}

	v, err := r.NextVersion("bp")
	if err != nil {
		t.Fatalf("next version: %v", err)
	}
	if v != "v4" {
		t.Fatalf("expected v4 (only v3 parses), got %s", v)
	}
}

func TestCorruptMetadata_Tolerated(t *testing.T) {
	r := openTest(t)
	if err := r.Register(sample("bp", "v1", time.Now().UTC())); err != nil {
		t.Fatalf("register: %v", err)
	}

	err := r.db.Exec(`UPDATE artifacts SET metadata = '{not json', inputs = '[broken' WHERE id = 'bp'`).Error
	if err != nil {
		t.Fatalf("corrupting row: %v", err)
	}

	got, err := r.Get("bp", "v1")
	if err != nil {
		t.Fatalf("read of corrupted row must not fail: %v", err)
	}
	if got.Metadata["error"] != "metadata_corrupted" {
		t.Fatalf("expected corruption marker, got %v", got.Metadata)
	}
	if got.Inputs != nil {
		t.Fatalf("expected empty inputs fallback, got %v", got.Inputs)
	}
}
