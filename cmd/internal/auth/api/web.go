package authapi

import (
	"net/http"
	"strings"
	"time"

	"reel/cmd/internal/auth/session"
)

// Cookie names match what browser clients expect.
const (
	accessCookieName  = "accessToken"
	refreshCookieName = "refreshToken"
)

func (h *Handler) setSessionCookies(w http.ResponseWriter, issued session.Issued) {
	if h == nil || w == nil || !h.cfg.CookieEnabled {
		return
	}
	h.setCookie(w, accessCookieName, issued.AccessToken, issued.AccessExp)
	h.setCookie(w, refreshCookieName, issued.RefreshToken, issued.RefreshExp)
}

func (h *Handler) clearSessionCookies(w http.ResponseWriter) {
	if h == nil || w == nil || !h.cfg.CookieEnabled {
		return
	}
	h.expireCookie(w, accessCookieName)
	h.expireCookie(w, refreshCookieName)
}

// accessTokenFromRequest prefers an Authorization bearer header and falls
// back to the access cookie.
func (h *Handler) accessTokenFromRequest(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if h == nil || !h.cfg.CookieEnabled {
		return ""
	}
	c, err := r.Cookie(accessCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (h *Handler) refreshTokenFromCookie(r *http.Request) string {
	if h == nil || r == nil || !h.cfg.CookieEnabled {
		return ""
	}
	c, err := r.Cookie(refreshCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, exp time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}

func (h *Handler) expireCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: h.cfg.CookieSameSite,
	})
}
