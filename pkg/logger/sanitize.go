package logger

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// SanitizeUsername masks an attempted username for process logs
// (e.g. "root" -> "r***"). Attackers often type passwords into the
// username field, so the raw value never reaches stdout.
func SanitizeUsername(username string) string {
	if username == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(username)
	rest := utf8.RuneCountInString(username[size:])
	return string(first) + strings.Repeat("*", rest)
}

// RedactedAttr returns a redacted slog attribute for sensitive values
// In production, returns "[REDACTED]"; in development, returns the actual value
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// SanitizeQueryString reports whether the query string carries a
// sensitive parameter and should be redacted as a whole.
func SanitizeQueryString(rawQuery string) bool {
	sensitiveParams := []string{"password", "token", "secret", "api_key", "apikey", "auth", "chat_id"}

	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
