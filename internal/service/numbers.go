package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"time"
)

const numberAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// GenerateTransactionNumber produces a human-facing unique order reference:
// TXN-<millis base36>-<8 random base36 chars>. The random tail keeps numbers
// generated within the same millisecond apart.
func GenerateTransactionNumber() string {
	ts := strings.ToUpper(strconv.FormatInt(time.Now().UnixMilli(), 36))

	tail := make([]byte, 8)
	max := big.NewInt(int64(len(numberAlphabet)))
	for i := range tail {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken;
			// fall back to a nanosecond-derived character.
			tail[i] = numberAlphabet[time.Now().UnixNano()%int64(len(numberAlphabet))]
			continue
		}
		tail[i] = numberAlphabet[n.Int64()]
	}

	return fmt.Sprintf("TXN-%s-%s", ts, string(tail))
}

// SignatureFunc signs a gateway reference and total for integrity checks.
type SignatureFunc func(reference string, totalCents int64) string

// BuildSignatureFunc returns the SHA-256 integrity signature over
// reference+total+currency+key. Without a key it degrades to the
// unsigned concatenation, matching sandbox gateways that skip verification.
func BuildSignatureFunc(integrityKey, currency string) SignatureFunc {
	return func(reference string, totalCents int64) string {
		if integrityKey == "" {
			return fmt.Sprintf("%s%d", reference, totalCents)
		}
		sum := sha256.Sum256([]byte(fmt.Sprintf("%s%d%s%s", reference, totalCents, currency, integrityKey)))
		return hex.EncodeToString(sum[:])
	}
}
