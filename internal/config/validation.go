package config

import (
	"fmt"
	"strings"
)

// ValidateUnderlyings checks that every configured underlying has a preset.
// The serve loop has no way to ask for custom chain parameters, so only
// preset underlyings are allowed there; custom mode is CLI-only.
func ValidateUnderlyings(underlyings []string) error {
	if len(underlyings) == 0 {
		return fmt.Errorf("no underlyings configured")
	}
	var unknown []string
	for _, u := range underlyings {
		if _, ok := Presets[u]; !ok {
			unknown = append(unknown, u)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown underlyings: %s (known: %s)",
			strings.Join(unknown, ", "), strings.Join(DefaultUnderlyings, ", "))
	}
	return nil
}

// ValidateExpiration checks the YYMMDD expiration format.
func ValidateExpiration(expiration string) error {
	if len(expiration) != 6 {
		return fmt.Errorf("expiration must be YYMMDD, got %q", expiration)
	}
	for _, r := range expiration {
		if r < '0' || r > '9' {
			return fmt.Errorf("expiration must be YYMMDD, got %q", expiration)
		}
	}
	return nil
}
