package logger

import (
	"log/slog"
	"net/url"
	"strings"
)

// SanitizedEmail masks an address for logging, keeping the first character
// of the local part and the top-level domain: "alice@example.com" becomes
// "a****@*******.com".
func SanitizedEmail(email string) string {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "[invalid-email]"
	}

	masked := local[:1] + strings.Repeat("*", len(local)-1)

	if dot := strings.LastIndex(domain, "."); dot > 0 {
		domain = maskKeepingDots(domain[:dot]) + domain[dot:]
	}
	return masked + "@" + domain
}

func maskKeepingDots(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '.' {
			return r
		}
		return '*'
	}, s)
}

// RedactedAttr hides value in production and logs it as-is elsewhere
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

// Query parameters that carry credentials or identify a recovery flow.
// Names containing one of sensitiveFragments are also redacted.
var (
	sensitiveParams    = map[string]struct{}{"code": {}, "state": {}, "email": {}, "new_email": {}, "session_state": {}}
	sensitiveFragments = []string{"token", "password", "secret", "api_key", "apikey"}
)

// SanitizeQueryString reports whether a raw query must be redacted from logs
// as a whole. Unparseable queries are redacted.
func SanitizeQueryString(rawQuery string) bool {
	if rawQuery == "" {
		return false
	}

	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return true
	}

	for name := range values {
		name = strings.ToLower(name)
		if _, ok := sensitiveParams[name]; ok {
			return true
		}
		for _, fragment := range sensitiveFragments {
			if strings.Contains(name, fragment) {
				return true
			}
		}
	}
	return false
}
