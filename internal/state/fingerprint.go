package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainState prefixes state fingerprints. The version suffix allows the
// canonical form to change without colliding with older fingerprints.
const DomainState = "recon/state/v1"

// Fingerprint returns a stable content hash of v:
// hex(SHA256(domain + 0x00 + canonical JSON)).
// Two values that are Equal produce the same fingerprint.
func Fingerprint(v Value) (string, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainState))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
