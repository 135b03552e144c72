// Package hasher computes the content digests that form artifact identity
// and stage cache keys. All digests are SHA-256, hex-encoded, and prefixed
// with the algorithm name ("sha256:<hex>") so stored hashes remain
// self-describing if the algorithm ever changes.
package hasher

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/stageflow/stageflow/errors"
)

// Prefix tags every digest with its algorithm.
const Prefix = "sha256:"

// fileChunkSize is the read buffer used when streaming files into the
// digest, so arbitrarily large files never load fully into memory.
const fileChunkSize = 64 * 1024

// HashFile computes the digest of a file's content, streamed in chunks.
// A missing or unreadable file is an error, never an empty digest: a
// missing input must not produce a false cache hit.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.New(errors.CodeHashIO, fmt.Sprintf("cannot hash %s", path)).WithCause(err)
	}
	defer f.Close()

	sha := sha256.New()
	buf := make([]byte, fileChunkSize)
	if _, err := io.CopyBuffer(sha, f, buf); err != nil {
		return "", errors.New(errors.CodeHashIO, fmt.Sprintf("reading %s", path)).WithCause(err)
	}
	return encode(sha), nil
}

// HashBytes computes the digest of an in-memory byte buffer.
func HashBytes(data []byte) string {
	sha := sha256.New()
	sha.Write(data)
	return encode(sha)
}

// HashStrings computes the digest of an ordered sequence of strings.
// Each element is written with a length frame, so the encoding is
// ordering-sensitive and unambiguous: ["ab","c"] and ["a","bc"] differ,
// and permutations of the same multiset produce different digests.
// Callers must feed inputs in a fixed, deterministic order.
func HashStrings(values []string) string {
	sha := sha256.New()
	var frame [8]byte
	for _, v := range values {
		binary.BigEndian.PutUint64(frame[:], uint64(len(v)))
		sha.Write(frame[:])
		sha.Write([]byte(v))
	}
	return encode(sha)
}

// HashLogic computes the digest of a stage's logic identifier. The
// identifier is an explicit, manually bumped version string declared by
// the stage; bumping it invalidates every cache entry the stage produced.
func HashLogic(identifier string) string {
	return HashBytes([]byte(identifier))
}

// HashDir computes a digest over a directory tree: the sorted relative
// paths of all regular files, each followed by its content digest. Sorting
// fixes the iteration order so repeated runs see identical input. Used when
// a stage consumes a directory rather than a single file.
func HashDir(dir string) (string, error) {
	var files []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return "", errors.New(errors.CodeHashIO, fmt.Sprintf("cannot walk %s", dir)).WithCause(err)
	}
	sort.Strings(files)

	entries := make([]string, 0, len(files)*2)
	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return "", errors.New(errors.CodeHashIO, fmt.Sprintf("cannot hash directory %s", dir)).WithCause(err)
		}
		content, err := HashFile(path)
		if err != nil {
			return "", err
		}
		entries = append(entries, filepath.ToSlash(rel), content)
	}
	return HashStrings(entries), nil
}

// HashPath hashes a file or, if path is a directory, the directory tree.
func HashPath(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.New(errors.CodeHashIO, fmt.Sprintf("cannot stat %s", path)).WithCause(err)
	}
	if info.IsDir() {
		return HashDir(path)
	}
	return HashFile(path)
}

func encode(h hash.Hash) string {
	return fmt.Sprintf("%s%x", Prefix, h.Sum(nil))
}
