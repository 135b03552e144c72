package engine

import (
	"os"
	"path/filepath"

	"github.com/stageflow/stageflow/logger"
)

// CleanupOptions control which generated files Cleanup removes.
type CleanupOptions struct {
	// DryRun reports what would be deleted without touching anything.
	DryRun bool
	// IncludeRaw also deletes files under the raw directories, which
	// are otherwise protected since they cannot be regenerated.
	IncludeRaw bool
}

// CleanupReport summarizes a cleanup pass.
type CleanupReport struct {
	// Deleted lists paths removed (or, in dry-run mode, the paths that
	// would have been removed).
	Deleted []string
	// Missing lists targeted paths that did not exist.
	Missing []string
	// Failed maps paths to the deletion error.
	Failed map[string]error
}

// Cleanup removes generated artifact files so the next run starts cold.
// Processed artifacts are always targeted; raw source files only when
// opts.IncludeRaw is set.
func Cleanup(artifacts []string, rawDirs []string, opts CleanupOptions, log *logger.Logger) *CleanupReport {
	report := &CleanupReport{Failed: make(map[string]error)}

	targets := append([]string(nil), artifacts...)
	if opts.IncludeRaw {
		for _, dir := range rawDirs {
			matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
			if err != nil {
				continue
			}
			targets = append(targets, matches...)
		}
	} else {
		log.Info("skipping raw files, pass include-raw to delete them")
	}

	for _, path := range targets {
		if _, err := os.Stat(path); err != nil {
			report.Missing = append(report.Missing, path)
			continue
		}

		if opts.DryRun {
			log.Info("would delete", map[string]interface{}{"path": path})
			report.Deleted = append(report.Deleted, path)
			continue
		}

		if err := os.Remove(path); err != nil {
			log.Warn("cannot delete", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
			report.Failed[path] = err
			continue
		}
		log.Info("deleted", map[string]interface{}{"path": path})
		report.Deleted = append(report.Deleted, path)
	}

	log.Info("cleanup finished", map[string]interface{}{
		"deleted": len(report.Deleted),
		"missing": len(report.Missing),
		"failed":  len(report.Failed),
		"dry_run": opts.DryRun,
	})
	return report
}
