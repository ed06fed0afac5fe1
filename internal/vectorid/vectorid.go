// Package vectorid derives vector store point identifiers from record
// store identifiers.
package vectorid

import (
	"crypto/sha256"
	"encoding/binary"
)

// maxID bounds point ids to [0, 2^63-1).
const maxID = uint64(1)<<63 - 1

// FromRecordID deterministically maps an arbitrary record identifier to a
// fixed-width point id: SHA-256 of the UTF-8 bytes, first 8 bytes read
// big-endian, reduced modulo 2^63-1. No salt is involved, so the mapping is
// stable across process restarts and the same record always overwrites its
// own point on re-ingestion.
//
// Collisions between distinct record ids silently overwrite an unrelated
// point. With a 63-bit space this is an accepted low-probability trade-off,
// not a handled condition.
func FromRecordID(recordID string) uint64 {
	sum := sha256.Sum256([]byte(recordID))
	return binary.BigEndian.Uint64(sum[:8]) % maxID
}
