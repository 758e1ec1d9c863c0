// Package ids derives the stable point identifiers that tie a metadata
// chunk row to its vector-store point. See spec §3: point_id is a pure
// function of chunk_hash, so re-ingesting unchanged content always
// produces the same point id.
package ids

import "github.com/google/uuid"

// NamespaceOID is the fixed UUID namespace librarian uses to derive
// point ids from chunk hashes. It is the standard "OID" namespace
// constant listed in RFC 4122 Appendix C, reused here as an
// arbitrary-but-fixed namespace rather than minting a private one —
// any fixed namespace satisfies the purity invariant, and reusing a
// well-known constant avoids accidental collisions with ad-hoc UUIDs
// elsewhere in the stack.
var NamespaceOID = uuid.NameSpaceOID

// PointID derives the UUIDv5 point identifier for a chunk from its
// content hash. Identical chunkHash values always yield identical
// point ids — this is the purity requirement behind prune and
// idempotent re-ingestion.
func PointID(chunkHash string) string {
	return uuid.NewSHA1(NamespaceOID, []byte(chunkHash)).String()
}

// NewOpaqueID returns a new random identifier suitable for primary
// keys that are not content-derived (sources, documents, chunks,
// ingestion runs). Unlike PointID, these carry no purity requirement —
// spec §9 only forbids ambient randomness in the point_id mapping.
func NewOpaqueID() string {
	return uuid.NewString()
}
