package ingest

import (
	"crypto/sha256"
	"encoding/hex"
)

// Fingerprint returns the idempotence key for a document's raw content.
// Identical bytes always produce the same fingerprint regardless of
// filename or path.
func Fingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
