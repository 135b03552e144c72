package engine

import (
	"os"
	"strings"

	"github.com/stageflow/stageflow/errors"
)

// RequireFiles is the generic gate: it verifies that every expected path
// exists before a stage is allowed to proceed. A failed gate is reported
// as GATE_FAILED, distinct from a stage execution failure: it means an
// upstream contract was broken, not that this stage's logic crashed.
func RequireFiles(stage string, paths []string) error {
	var missing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return errors.Newf(errors.CodeGateFailed,
			"gate failed before %q, missing: %s", stage, strings.Join(missing, ", ")).
			WithDetail("stage", stage).
			WithDetail("missing", missing)
	}
	return nil
}
