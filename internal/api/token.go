package api

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// cookie names the backend has used for the patient session token
var sessionCookieNames = map[string]bool{
	"patientToken": true,
	"token":        true,
}

// SessionExpiry peeks at the session cookie in the jar and, when it is a
// JWT, reports the token's expiry. The signature is NOT verified — only the
// server can do that — so the result is advisory: it lets the session store
// schedule a revalidation before the token lapses instead of discovering the
// lapse on a 401.
func (c *Client) SessionExpiry() (time.Time, bool) {
	for _, ck := range c.hc.Jar.Cookies(c.base) {
		if !sessionCookieNames[ck.Name] {
			continue
		}
		claims := jwt.RegisteredClaims{}
		if _, _, err := jwt.NewParser().ParseUnverified(ck.Value, &claims); err != nil {
			continue
		}
		if claims.ExpiresAt == nil {
			continue
		}
		return claims.ExpiresAt.Time, true
	}
	return time.Time{}, false
}
