package record

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormalizeEmail trims surrounding space and applies Unicode NFC so visually
// identical addresses compare equal. Case is preserved: lookups are exact.
func NormalizeEmail(email string) string {
	return norm.NFC.String(strings.TrimSpace(email))
}

// NormalizeText trims and NFC-normalizes free text such as names and dosages.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
