package domain

import (
	"regexp"
	"strings"
)

// VIN format: 17 alphanumeric characters, excluding I, O, Q.
var vinRegex = regexp.MustCompile(`^[A-HJ-NPR-Z0-9]{17}$`)

// NormalizeVIN trims surrounding whitespace and upper-cases the VIN.
// It does not reject malformed input; the decoder reports on partial VINs itself.
func NormalizeVIN(vin string) string {
	return strings.ToUpper(strings.TrimSpace(vin))
}

// ValidateVIN checks that vin is a well-formed 17 character VIN.
func ValidateVIN(vin string) error {
	v := NormalizeVIN(vin)
	if v == "" {
		return NewValidationError("vin", vin, ErrEmptyVIN)
	}
	if !vinRegex.MatchString(v) {
		return NewValidationError("vin", vin, ErrInvalidVIN)
	}
	return nil
}
