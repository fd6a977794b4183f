package pairing

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// codeAlphabet is the character set for pairing codes. Uppercase
// alphanumerics keep codes easy to read off a screen and type into a
// phone. Matching is case-insensitive so the full set is safe.
const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// codeLength is the number of characters in a pairing code.
const codeLength = 6

// generateCode produces a random pairing code using crypto/rand.
//
// 36^6 is around 2.2 billion combinations against a 10 minute window and
// a handful of outstanding codes, which is plenty for a human-typed
// proof-of-possession token.
func generateCode() (string, error) {
	buf := make([]byte, codeLength)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating pairing code: %w", err)
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf), nil
}
