// Package token is the site token registry. Tokens are opaque lowercase
// alphanumeric identifiers that partition every presence and event row.
package token

import (
	"crypto/rand"
	"fmt"
	"io"
	"regexp"
)

const (
	alphabet        = "abcdefghijklmnopqrstuvwxyz0123456789"
	GeneratedLength = 8
	MinLength       = 4
	MaxLength       = 32
)

var formatRe = regexp.MustCompile(`^[a-z0-9]{4,32}$`)

// ValidateFormat reports whether token is 4-32 lowercase letters or digits.
func ValidateFormat(token string) bool {
	return formatRe.MatchString(token)
}

// Generate returns a random token of length n drawn from [a-z0-9].
func Generate(n int) (string, error) {
	return generateFrom(rand.Reader, n)
}

// generateFrom rejection-samples bytes so every symbol is equally likely.
func generateFrom(r io.Reader, n int) (string, error) {
	const limit = 256 - 256%len(alphabet)

	out := make([]byte, 0, n)
	buf := make([]byte, n*2)
	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}
