package main

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/stageflow/stageflow/config"
	"github.com/stageflow/stageflow/engine"
	"github.com/stageflow/stageflow/errors"
)

// Stage bodies for the built-in pipeline. Each reads CSVs from the
// previous stage's directory and writes its outputs to temporary paths;
// the orchestrator owns the atomic rename to final names.

func cleanupTargets(cfg *config.Config) (artifacts []string, rawDirs []string) {
	for _, dir := range []string{cfg.Data.NormalizedDir, cfg.Data.ValidatedDir, cfg.Data.MergedDir} {
		matches, _ := filepath.Glob(filepath.Join(dir, "*.csv"))
		artifacts = append(artifacts, matches...)
	}
	return artifacts, []string{cfg.Data.RawDir}
}

// normalizeStage drops fully empty rows from every raw CSV and stages
// the result as <stem>_normalized.csv.
func normalizeStage(cfg *config.Config) engine.StageRunner {
	return engine.RunnerFunc(func(ctx context.Context) (*engine.StageResult, error) {
		files, err := listCSV(cfg.Data.RawDir)
		if err != nil {
			return nil, err
		}

		var temps []string
		var totalRows int64
		for _, path := range files {
			rows, err := readCSV(path)
			if err != nil {
				return nil, err
			}
			kept := rows[:0]
			for _, row := range rows {
				if !rowEmpty(row) {
					kept = append(kept, row)
				}
			}
			if len(kept) > 0 {
				totalRows += int64(len(kept) - 1) // minus header
			}

			out := filepath.Join(cfg.Data.NormalizedDir, engine.Stem(path)+"_normalized.csv")
			tmp, err := writeCSVTemp(out, kept)
			if err != nil {
				return nil, err
			}
			temps = append(temps, tmp)
		}

		return &engine.StageResult{
			Artifacts: map[string][]string{"normalized_data": temps},
			Rows:      &totalRows,
		}, nil
	})
}

// validateStage keeps only rows whose field count matches the header and
// stages the result as <stem>_validated.csv. A file without a header is
// rejected outright.
func validateStage(cfg *config.Config) engine.StageRunner {
	return engine.RunnerFunc(func(ctx context.Context) (*engine.StageResult, error) {
		files, err := listCSV(cfg.Data.NormalizedDir)
		if err != nil {
			return nil, err
		}

		var temps []string
		var totalRows int64
		for _, path := range files {
			rows, err := readCSV(path)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				return nil, errors.Newf(errors.CodeInvalidInput,
					"%s has no header row", filepath.Base(path))
			}

			width := len(rows[0])
			kept := [][]string{rows[0]}
			for _, row := range rows[1:] {
				if len(row) == width {
					kept = append(kept, row)
				}
			}
			totalRows += int64(len(kept) - 1)

			stem := strings.TrimSuffix(engine.Stem(path), "_normalized")
			out := filepath.Join(cfg.Data.ValidatedDir, stem+"_validated.csv")
			tmp, err := writeCSVTemp(out, kept)
			if err != nil {
				return nil, err
			}
			temps = append(temps, tmp)
		}

		return &engine.StageResult{
			Artifacts: map[string][]string{"validated_data": temps},
			Rows:      &totalRows,
		}, nil
	})
}

// mergeStage concatenates every validated CSV into merged.csv, prefixing
// each row with its source file's stem.
func mergeStage(cfg *config.Config) engine.StageRunner {
	return engine.RunnerFunc(func(ctx context.Context) (*engine.StageResult, error) {
		files, err := listCSV(cfg.Data.ValidatedDir)
		if err != nil {
			return nil, err
		}

		merged := [][]string{}
		sources := map[string]int{}
		var totalRows int64
		for _, path := range files {
			rows, err := readCSV(path)
			if err != nil {
				return nil, err
			}
			if len(rows) == 0 {
				continue
			}
			stem := strings.TrimSuffix(engine.Stem(path), "_validated")
			if len(merged) == 0 {
				merged = append(merged, append([]string{"source"}, rows[0]...))
			}
			for _, row := range rows[1:] {
				merged = append(merged, append([]string{stem}, row...))
			}
			sources[stem] = len(rows) - 1
			totalRows += int64(len(rows) - 1)
		}

		out := filepath.Join(cfg.Data.MergedDir, "merged.csv")
		tmp, err := writeCSVTemp(out, merged)
		if err != nil {
			return nil, err
		}

		return &engine.StageResult{
			Artifacts: map[string][]string{"merged_data": {tmp}},
			Rows:      &totalRows,
			Sources:   sources,
		}, nil
	})
}

func listCSV(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "listing "+dir, err)
	}
	sort.Strings(matches)
	return matches, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "opening "+path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidInput, "parsing "+path, err)
	}
	return rows, nil
}

func writeCSVTemp(finalPath string, rows [][]string) (string, error) {
	tmp := engine.TempPath(finalPath)
	f, err := os.Create(tmp)
	if err != nil {
		return "", errors.Wrap(errors.CodeInternal, "creating "+tmp, err)
	}

	writer := csv.NewWriter(f)
	if err := writer.WriteAll(rows); err != nil {
		f.Close()
		return "", errors.Wrap(errors.CodeInternal, "writing "+tmp, err)
	}
	if err := f.Close(); err != nil {
		return "", errors.Wrap(errors.CodeInternal, "closing "+tmp, err)
	}
	return tmp, nil
}

func rowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
