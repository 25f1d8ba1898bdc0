package httpapi

import (
	"net/http"
	"time"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

func (a *API) authCookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   a.config.CookieDomain,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
		Secure:   a.config.Production,
	}
	if value == "" {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}

func (a *API) setAuthCookies(w http.ResponseWriter, access, refresh string) {
	http.SetCookie(w, a.authCookie(accessCookie, access, a.codec.AccessTTL()))
	http.SetCookie(w, a.authCookie(refreshCookie, refresh, a.codec.RefreshTTL()))
}

func (a *API) setAccessCookie(w http.ResponseWriter, access string) {
	http.SetCookie(w, a.authCookie(accessCookie, access, a.codec.AccessTTL()))
}

func (a *API) clearAuthCookies(w http.ResponseWriter) {
	http.SetCookie(w, a.authCookie(accessCookie, "", 0))
	http.SetCookie(w, a.authCookie(refreshCookie, "", 0))
}
