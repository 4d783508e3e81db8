package api

import (
	"net/http"
	"time"

	"github.com/subha-wp/advisorpro-crm-sub002/internal/auth"
	"github.com/subha-wp/advisorpro-crm-sub002/internal/infrastructure/config"
)

// cookieJar writes and reads the two session cookies.
type cookieJar struct {
	accessName  string
	refreshName string
	domain      string
	secure      bool
	accessTTL   time.Duration
	refreshTTL  time.Duration
}

func newCookieJar(sec config.SecurityConfig, secure bool, accessTTL time.Duration) cookieJar {
	j := cookieJar{
		accessName:  sec.Cookies.AccessName,
		refreshName: sec.Cookies.RefreshName,
		domain:      sec.Cookies.Domain,
		secure:      secure,
		accessTTL:   accessTTL,
		refreshTTL:  sec.RefreshTTL(),
	}
	if j.accessName == "" {
		j.accessName = auth.DefaultAccessCookie
	}
	if j.refreshName == "" {
		j.refreshName = "ap_refresh"
	}
	if j.refreshTTL <= 0 {
		j.refreshTTL = auth.DefaultRefreshTTL
	}
	return j
}

// set writes both cookies for session.
func (j cookieJar) set(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, j.cookie(j.accessName, session.AccessToken, j.accessTTL))
	http.SetCookie(w, j.cookie(j.refreshName, session.Refresh.String(), j.refreshTTL))
}

// clear expires both cookies.
func (j cookieJar) clear(w http.ResponseWriter) {
	for _, name := range []string{j.accessName, j.refreshName} {
		c := j.cookie(name, "", 0)
		c.MaxAge = -1
		http.SetCookie(w, c)
	}
}

// readRefresh parses the refresh cookie. A missing or malformed cookie
// wraps auth.ErrInvalidRefresh.
func (j cookieJar) readRefresh(r *http.Request) (auth.RefreshCredential, error) {
	c, err := r.Cookie(j.refreshName)
	if err != nil {
		return auth.RefreshCredential{}, auth.ErrRefreshMalformed
	}
	return auth.ParseRefreshCredential(c.Value)
}

func (j cookieJar) cookie(name, value string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   j.domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   j.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
