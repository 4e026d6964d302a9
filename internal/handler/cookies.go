package handler

import (
	"net/http"

	"github.com/hitoshi/timecapsule/internal/middleware"
)

const oauthStateCookie = "oauth_state"

// oauthStateMaxAge はstate Cookieの有効期間（秒）。
const oauthStateMaxAge = 600

// CookieConfig はハンドラーが発行するCookieの共通属性。
type CookieConfig struct {
	Domain string
	Secure bool
}

// setSessionCookie はセッショントークンをHttpOnly Cookieに設定する。
func (c CookieConfig) setSessionCookie(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (c CookieConfig) clearSessionCookie(w http.ResponseWriter) {
	c.setSessionCookie(w, "", -1)
}

func (c CookieConfig) setStateCookie(w http.ResponseWriter, state string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     oauthStateCookie,
		Value:    state,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}
