package hosts

import (
	"fmt"
	"strings"
)

const sha256Prefix = "sha256:"

// Digest is a content digest in "sha256:hex" form.
type Digest string

// NewDigest prefixes a raw hex string with "sha256:".
func NewDigest(hex string) Digest {
	return Digest(sha256Prefix + strings.ToLower(hex))
}

// ParseDigest accepts "sha256:hex" or bare hex and checks the length.
func ParseDigest(s string) (Digest, error) {
	hex := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), sha256Prefix)
	if len(hex) != 64 || strings.Trim(hex, "0123456789abcdef") != "" {
		return "", fmt.Errorf("invalid sha256 digest %q", s)
	}
	return NewDigest(hex), nil
}

// Hex returns the digest without the algorithm prefix.
func (d Digest) Hex() string {
	return strings.TrimPrefix(string(d), sha256Prefix)
}

// Short is the first 12 hex characters, for logs.
func (d Digest) Short() string {
	hex := d.Hex()
	if len(hex) > 12 {
		return hex[:12]
	}
	return hex
}

func (d Digest) String() string {
	return string(d)
}
