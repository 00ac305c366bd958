package auth

import (
	"net/http"
	"time"

	"github.com/google/uuid"
)

// BrowserCookie is the name of the cookie holding the browser key.
const BrowserCookie = "tg_browser"

const browserCookieMaxAge = 30 * 24 * time.Hour

// BrowserKeyMiddleware ensures every request carries a browser key, issuing a
// new cookie when the client has none or presents a malformed one.
func BrowserKeyMiddleware(secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := ""
			if c, err := r.Cookie(BrowserCookie); err == nil {
				if _, perr := uuid.Parse(c.Value); perr == nil {
					key = c.Value
				}
			}
			if key == "" {
				key = uuid.NewString()
				http.SetCookie(w, &http.Cookie{
					Name:     BrowserCookie,
					Value:    key,
					Path:     "/",
					MaxAge:   int(browserCookieMaxAge.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}
			next.ServeHTTP(w, r.WithContext(WithBrowserKey(r.Context(), key)))
		})
	}
}
