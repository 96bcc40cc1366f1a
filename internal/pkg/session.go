package pkg

import (
	"fmt"
	"net/http"
	"time"
)

const (
	SessionCookieName = "user_session"
	SessionCookieTTL  = 24 * time.Hour
)

// SessionFromRequest returns the session id carried by the request cookie. When the cookie is
// missing a new id is generated and the returned cookie must be sent back to the client.
func SessionFromRequest(req *http.Request) (string, *http.Cookie, error) {
	if cookie, err := req.Cookie(SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value, nil, nil
	}

	sessionID, err := GenerateNewSessionID()
	if err != nil {
		return "", nil, fmt.Errorf("failed to generate session id: %w", err)
	}

	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Expires:  time.Now().Add(SessionCookieTTL),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	return sessionID, cookie, nil
}
