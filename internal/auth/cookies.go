package auth

import (
	"net/http"
	"time"
)

// LinkSessionCookie carries the browser-session key for in-flight provider redirects
const LinkSessionCookie = "link_session"

// CookieConfig holds cookie configuration settings
type CookieConfig struct {
	Domain   string // Empty string = current host only
	Secure   bool   // HTTPS only
	SameSite string // "strict", "lax", or "none"
}

// SetLinkSessionCookie stores the link session ID in an httpOnly cookie.
// SameSite must allow top-level navigation back from the provider, so
// "strict" is downgraded to lax.
func SetLinkSessionCookie(w http.ResponseWriter, sessionID string, ttl time.Duration, config CookieConfig) {
	sameSite := parseSameSite(config.SameSite)
	if sameSite == http.SameSiteStrictMode {
		sameSite = http.SameSiteLaxMode
	}

	http.SetCookie(w, &http.Cookie{
		Name:     LinkSessionCookie,
		Value:    sessionID,
		Path:     "/",
		Domain:   config.Domain,
		Expires:  time.Now().Add(ttl),
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: sameSite,
	})
}

// ClearLinkSessionCookie deletes the link session cookie
func ClearLinkSessionCookie(w http.ResponseWriter, config CookieConfig) {
	http.SetCookie(w, &http.Cookie{
		Name:     LinkSessionCookie,
		Value:    "",
		Path:     "/",
		Domain:   config.Domain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   config.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetLinkSessionCookie retrieves the link session ID, "" if absent
func GetLinkSessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(LinkSessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// parseSameSite converts string to http.SameSite constant
func parseSameSite(sameSite string) http.SameSite {
	switch sameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteDefaultMode
	}
}
