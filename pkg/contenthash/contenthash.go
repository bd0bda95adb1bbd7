package contenthash

import (
	"crypto/sha256"
	"encoding/hex"
)

// LabelLen is the number of leading hex characters used when a digest is
// shown to a human (comments, check-run summaries).
const LabelLen = 7

// Sum returns the hex-encoded sha256 digest of the UTF-8 bytes of text.
// The empty string hashes like any other text; "no CLA configured" is
// modeled as an absent digest, not as Sum("").
func Sum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Label shortens a digest for display. Digests shorter than LabelLen are
// returned unchanged.
func Label(digest string) string {
	if len(digest) <= LabelLen {
		return digest
	}
	return digest[:LabelLen]
}
