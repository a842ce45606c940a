package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/schedulo/verify/pkg/utils"
)

const codeSpace = 1000000

// GenerateCode produces a fixed-width 6-digit code drawn uniformly from
// crypto/rand, plus the keyed digest that gets persisted. The plaintext
// exists only until delivery; entropy failure fails the issuance closed.
func GenerateCode() (plaintext string, digest string, err error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpace))
	if err != nil {
		return "", "", fmt.Errorf("entropy source failure: %w", err)
	}

	plaintext = fmt.Sprintf("%06d", n.Int64())
	return plaintext, utils.DigestCode(plaintext), nil
}
