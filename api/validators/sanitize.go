package validators

import "strings"

func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen > 0 && len(trimmed) > maxLen {
		return trimmed[:maxLen]
	}
	return trimmed
}

// SanitizeOptional trims an optional string and drops it when empty.
func SanitizeOptional(input *string, maxLen int) *string {
	if input == nil {
		return nil
	}
	cleaned := SanitizeString(*input, maxLen)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
