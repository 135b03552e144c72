package ingest

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stageflow/stageflow/engine"
	"github.com/stageflow/stageflow/errors"
)

// DirSource ingests CSV drops from a local directory. It is the
// built-in source for pipelines fed by files copied into an inbox
// folder: every *.csv in the source directory is read, its header row
// normalized, and the result staged into the destination directory.
type DirSource struct {
	name    string
	srcDir  string
	destDir string
}

// NewDirSource creates a DirSource named name that reads from srcDir
// and stages normalized copies into destDir.
func NewDirSource(name, srcDir, destDir string) *DirSource {
	return &DirSource{name: name, srcDir: srcDir, destDir: destDir}
}

func (s *DirSource) Name() string { return s.name }

// Connect verifies the source directory exists.
func (s *DirSource) Connect(ctx context.Context) error {
	info, err := os.Stat(s.srcDir)
	if err != nil {
		return errors.Newf(errors.CodeIngestionFailed,
			"source directory %q unavailable", s.srcDir).WithCause(err)
	}
	if !info.IsDir() {
		return errors.Newf(errors.CodeInvalidInput, "%q is not a directory", s.srcDir)
	}
	return nil
}

// Fetch lists the CSV files in the source directory. An empty directory
// is a valid, empty batch.
func (s *DirSource) Fetch(ctx context.Context) (any, error) {
	matches, err := filepath.Glob(filepath.Join(s.srcDir, "*.csv"))
	if err != nil {
		return nil, errors.Wrap(errors.CodeIngestionFailed, "listing source files", err)
	}
	return matches, nil
}

// Normalize reads each fetched file and canonicalizes its header row:
// lower-cased, trimmed, spaces collapsed to underscores. Returns a map
// of base filename to normalized content.
func (s *DirSource) Normalize(raw any) (any, error) {
	files, ok := raw.([]string)
	if !ok {
		return nil, errors.Newf(errors.CodeInternal, "unexpected fetch payload %T", raw)
	}

	out := make(map[string][]byte, len(files))
	for _, path := range files {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.CodeIngestionFailed, "reading source file", err)
		}
		normalized, err := normalizeCSVHeader(data)
		if err != nil {
			return nil, errors.Newf(errors.CodeIngestionFailed,
				"malformed CSV %q", filepath.Base(path)).WithCause(err)
		}
		out[filepath.Base(path)] = normalized
	}
	return out, nil
}

// Store writes each normalized snapshot to a temporary path in the
// destination directory and returns the temp paths.
func (s *DirSource) Store(normalized any) ([]string, error) {
	batch, ok := normalized.(map[string][]byte)
	if !ok {
		return nil, errors.Newf(errors.CodeInternal, "unexpected normalize payload %T", normalized)
	}

	names := make([]string, 0, len(batch))
	for name := range batch {
		names = append(names, name)
	}
	// Deterministic staging order keeps logs and tests stable.
	sort.Strings(names)

	var paths []string
	for _, name := range names {
		tmp := engine.TempPath(filepath.Join(s.destDir, name))
		if err := os.WriteFile(tmp, batch[name], 0o644); err != nil {
			return paths, errors.Wrap(errors.CodeIngestionFailed, "staging file", err)
		}
		paths = append(paths, tmp)
	}
	return paths, nil
}

func normalizeCSVHeader(data []byte) ([]byte, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return data, nil
	}
	for i, col := range rows[0] {
		col = strings.ToLower(strings.TrimSpace(col))
		rows[0][i] = strings.ReplaceAll(col, " ", "_")
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
