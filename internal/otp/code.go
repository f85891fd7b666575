package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"regexp"
)

const (
	alphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength = 6
)

var wellFormed = regexp.MustCompile(`^[A-Z0-9]{6}$`)

// Generate draws each position uniformly from the code alphabet.
func Generate() (string, error) {
	max := big.NewInt(int64(len(alphabet)))

	out := make([]byte, codeLength)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate otp: %w", err)
		}
		out[i] = alphabet[n.Int64()]
	}

	return string(out), nil
}

// IsWellFormed checks length and alphabet only. It is a cheap prefilter
// before touching storage, not a security check.
func IsWellFormed(code string) bool {
	return wellFormed.MatchString(code)
}
