// Package fingerprint identifies flashcard content independently of ids, so
// cards derived from a note can be matched across re-imports.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize joins front and back after trimming, lowercasing and
// normalizing line endings of each.
func Normalize(front, back string) string {
	normalizePart := func(part string) string {
		p := strings.ToLower(part)
		p = strings.ReplaceAll(p, "\r\n", "\n")
		return strings.TrimSpace(p)
	}
	// The newline keeps "ab"+"c" distinct from "a"+"bc".
	return normalizePart(front) + "\n" + normalizePart(back)
}

// Hash returns the hex SHA-256 of the normalized card text.
func Hash(front, back string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(Normalize(front, back))))
}
