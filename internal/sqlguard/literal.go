package sqlguard

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// isSuspiciousLiteral reports whether a string literal's contents look like an
// injection payload, such as a quote break followed by a tautology.
func isSuspiciousLiteral(value string) bool {
	if len(value) < 2 {
		return false
	}
	isSQLi, _ := libinjection.IsSQLi(value)
	return isSQLi
}
