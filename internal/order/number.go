package order

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// NewNumber generates the externally-shown order number. Uniqueness is
// enforced by the orders.number constraint; the random suffix makes
// collisions within a day vanishingly unlikely.
func NewNumber(now time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("AAS-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}

// NewVerificationCode returns the 4-digit code exchanged at handoff.
func NewVerificationCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "0000"
	}
	return fmt.Sprintf("%04d", n.Int64())
}
