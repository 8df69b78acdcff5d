// Package ticket issues ticket codes and the signed QR payloads that prove them.
package ticket

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Alphabet is the 36-symbol set ticket codes are drawn from.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the number of symbols in a ticket code.
const CodeLength = 8

var alphabetSize = big.NewInt(int64(len(Alphabet)))

// NewCode returns a random 8-symbol ticket code. Uniqueness is the caller's
// job: check the store and draw again on collision.
func NewCode() (string, error) {
	b := make([]byte, CodeLength)
	for i := range b {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b[i] = Alphabet[n.Int64()]
	}
	return string(b), nil
}
