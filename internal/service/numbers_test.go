package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateTransactionNumber(t *testing.T) {
	number := GenerateTransactionNumber()

	assert.True(t, strings.HasPrefix(number, "TXN-"))
	parts := strings.Split(number, "-")
	assert.Len(t, parts, 3)
	assert.Equal(t, strings.ToUpper(number), number)
}

func TestGenerateTransactionNumberUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		number := GenerateTransactionNumber()
		assert.False(t, seen[number], "duplicate transaction number: %s", number)
		seen[number] = true
	}
}

func TestBuildSignatureFunc(t *testing.T) {
	sign := BuildSignatureFunc("secret-key", "COP")

	sig := sign("TXN-REF-1", 11500)
	assert.Len(t, sig, 64) // sha256 hex
	assert.Equal(t, sig, sign("TXN-REF-1", 11500))
	assert.NotEqual(t, sig, sign("TXN-REF-1", 11501))
	assert.NotEqual(t, sig, sign("TXN-REF-2", 11500))
}

func TestBuildSignatureFuncWithoutKey(t *testing.T) {
	sign := BuildSignatureFunc("", "COP")
	assert.Equal(t, "TXN-REF-111500", sign("TXN-REF-1", 11500))
}
