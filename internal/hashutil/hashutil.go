// Package hashutil provides the content-addressed fingerprinting used by
// every other component in librarian. BLAKE3 is the sole hash function:
// its collision resistance is the basis for the point_id invariant tying
// a vector-store point to exactly one metadata chunk row.
package hashutil

import (
	"encoding/hex"

	"lukechampine.com/blake3"
)

// digestSize is the number of bytes in a BLAKE3 digest used throughout
// librarian. 32 bytes (256 bits) matches the default BLAKE3 output size.
const digestSize = 32

// HashBytes returns the lowercase hex-encoded BLAKE3 digest of b.
// It is used for document content hashes (doc_hash = BLAKE3(raw bytes)).
func HashBytes(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashChunk returns the lowercase hex-encoded BLAKE3 digest of
// docHashHex concatenated with chunkText, i.e.
// chunk_hash = BLAKE3(doc_hash || chunk_text). docHashHex is taken as
// the raw hex string bytes, not decoded, matching the concatenation
// semantics in spec §3.
func HashChunk(docHashHex string, chunkText string) string {
	h := blake3.New(digestSize, nil)
	_, _ = h.Write([]byte(docHashHex))
	_, _ = h.Write([]byte(chunkText))
	return hex.EncodeToString(h.Sum(nil))
}
