package textmatch

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint builds a deterministic content hash over the normalized core
// fields, with filler words stripped from the title first. Equal
// fingerprints mean content-level duplicates even when URLs differ. Not a
// security boundary; sha256 is used for its stable distribution only.
func Fingerprint(title, organization, city string) string {
	input := strings.Join(SignificantTokens(title), " ") +
		"|" + Normalize(organization) +
		"|" + Normalize(city)
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:8])
}
