// Package registry is the versioned, hash-indexed artifact metadata store.
//
// It is backed by a single-file embedded SQLite database with one
// artifacts table keyed by (id, version). Registration is an idempotent
// upsert; reads tolerate corrupted metadata blobs by substituting a
// marked-corrupt value. The inputs column holds the lineage hashes that
// produced each version and drives the cache-hit lookup GetByInputHash.
package registry
