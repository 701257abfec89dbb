package diagnostics

import "strings"

var sensitiveKeys = []string{
	"token",
	"secret",
	"password",
	"authorization",
	"api_key",
	"apikey",
	"cookie",
}

const redacted = "***"

// IsSensitiveKey reports whether values under key must not be exported.
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, needle := range sensitiveKeys {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// RedactFields returns a copy of fields with sensitive values masked.
// Nested maps are walked.
func RedactFields(fields map[string]any) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(fields))
	for key, value := range fields {
		if IsSensitiveKey(key) {
			out[key] = redacted
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			out[key] = RedactFields(nested)
			continue
		}
		out[key] = value
	}
	return out
}
