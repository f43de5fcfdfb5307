package middleware

import "net/http"

// SessionCookieName is the cookie carrying the session id. The realtime
// handshake reads the same cookie.
const SessionCookieName = "sessionId"

// SessionCookie returns the session cookie with standard security settings
func SessionCookie(sessionID string, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// ExpiredSessionCookie returns a cookie that clears the session (for logout)
func ExpiredSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	}
}
