// internal/room/settlement.go
package room

import (
	"fmt"
	"math"
)

// AmountScale is the payment provider's fixed-point unit for amounts embedded in deeplinks.
const AmountScale = 524288

// SplitAmount computes the per-person share and its uppercase hex encoding.
func SplitAmount(total int64, count int) (float64, string, error) {
	if count <= 0 {
		return 0, "", newError(ErrInsufficientParticipants, "cannot split between %d participants", count)
	}
	if total <= 0 {
		return 0, "", newError(ErrInvalidRequest, "total amount must be positive, got %d", total)
	}
	perPerson := float64(total) / float64(count)
	encoded := int64(math.Round(perPerson * AmountScale))
	return perPerson, fmt.Sprintf("%X", encoded), nil
}

// BuildDeeplink appends the encoded amount to the payee's link base.
func BuildDeeplink(linkBase, amountHex string) string {
	return linkBase + amountHex
}
