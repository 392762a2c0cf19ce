package openpay

import (
	"crypto/rand"
	"fmt"
)

// MinNonceLength is the minimum length of an interaction nonce. Anything
// shorter is guessable enough to allow interaction hijacking.
const MinNonceLength = 16

const nonceAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiasedByte is the largest multiple of len(nonceAlphabet) that fits
// in a byte. Bytes at or above it are redrawn so every alphabet character
// is equally likely.
const maxUnbiasedByte = 256 - 256%len(nonceAlphabet)

// NewNonce returns a cryptographically random alphanumeric nonce of length
// n. Lengths below MinNonceLength are raised to MinNonceLength.
func NewNonce(n int) string {
	if n < MinNonceLength {
		n = MinNonceLength
	}
	out := make([]byte, 0, n)
	buf := make([]byte, n)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		for _, b := range buf {
			if int(b) >= maxUnbiasedByte {
				continue
			}
			out = append(out, nonceAlphabet[int(b)%len(nonceAlphabet)])
			if len(out) == n {
				break
			}
		}
	}
	return string(out)
}
