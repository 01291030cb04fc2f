package httpapi

import (
	"net/http"
	"time"

	"github.com/dmitrijs2005/bizledger/internal/common"
	"github.com/dmitrijs2005/bizledger/internal/server/services"
)

const (
	accessCookie  = common.AccessTokenCookieName
	refreshCookie = common.RefreshTokenCookieName
)

type cookieJar struct {
	secure     bool
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func (j cookieJar) set(w http.ResponseWriter, pair *services.TokenPair) {
	http.SetCookie(w, j.cookie(accessCookie, pair.AccessToken, j.accessTTL))
	http.SetCookie(w, j.cookie(refreshCookie, pair.RefreshToken, j.refreshTTL))
}

func (j cookieJar) clear(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		c := j.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (j cookieJar) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteStrictMode,
	}
}

// cookieValue returns "" when the cookie is absent.
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
