package engine

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/stageflow/stageflow/errors"
)

// Temporary output paths are the final path plus a random discriminator:
// <basename>.<ext>.<4-hex-char>.tmp. The random component keeps two
// concurrent attempts from clobbering each other's scratch files; the
// .tmp suffix keeps readers from ever mistaking scratch for committed
// output.
var tempSuffixRe = regexp.MustCompile(`\.[0-9a-f]{4}\.tmp$`)

// TempPath derives a fresh temporary path for the given final path.
func TempPath(finalPath string) string {
	var b [2]byte
	rand.Read(b[:])
	return fmt.Sprintf("%s.%s.tmp", finalPath, hex.EncodeToString(b[:]))
}

// IsTempPath reports whether path carries the temporary suffix.
func IsTempPath(path string) bool {
	return tempSuffixRe.MatchString(path)
}

// FinalPath strips the temporary suffix, recovering the committed
// location a temp file will be renamed to.
func FinalPath(tempPath string) (string, error) {
	if !IsTempPath(tempPath) {
		return "", errors.Newf(errors.CodeInvalidInput,
			"%q is not a temporary output path", tempPath)
	}
	return tempSuffixRe.ReplaceAllString(tempPath, ""), nil
}

// Ext returns the file extension without the leading dot, for artifact
// format classification.
func Ext(path string) string {
	return strings.TrimPrefix(filepath.Ext(path), ".")
}

// Stem returns the base name without its extension, used as an
// artifact's logical name.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
