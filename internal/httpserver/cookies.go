package httpserver

import (
	"net/http"
	"time"
)

const (
	RefreshCookieName       = "refresh_token"
	DefaultRefreshCookieTTL = 60 * time.Minute
)

type CookieConfig struct {
	Secure bool
	// TTL is the browser lifetime of the refresh cookie. It may be shorter
	// than the server-side refresh window.
	TTL time.Duration
}

func (cc CookieConfig) ttl() time.Duration {
	if cc.TTL > 0 {
		return cc.TTL
	}
	return DefaultRefreshCookieTTL
}

func (cc CookieConfig) Refresh(value string, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    value,
		Path:     "/",
		Expires:  now.Add(cc.ttl()),
		MaxAge:   int(cc.ttl().Seconds()),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (cc CookieConfig) ClearRefresh() *http.Cookie {
	return &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
