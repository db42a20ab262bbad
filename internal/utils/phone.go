package utils

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/google/uuid"
)

// SanitizePhoneNumber strips the leading + and all whitespace from a display
// phone number so it can be sent to the channel creation endpoint.
// Applying it twice yields the same result.
func SanitizePhoneNumber(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r == '+' || unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsValidPIN reports whether pin is exactly 6 digits (the two-step
// verification PIN required for fresh number registration).
func IsValidPIN(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// GenerateID generates a prefixed unique ID for backend resources
func GenerateID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}
