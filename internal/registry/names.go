package registry

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizeLabel trims the label and rejects values that would garble logs.
// Labels are free-form otherwise.
func NormalizeLabel(raw string) (string, error) {
	label := strings.TrimSpace(raw)
	if label == "" {
		return "", fmt.Errorf("label must not be empty")
	}
	for _, r := range label {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("label %q contains control character %q", label, r)
		}
	}
	return label, nil
}
