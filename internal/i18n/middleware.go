package i18n

import "net/http"

// Middleware injects a localizer into every request context. The language is
// taken from the "lang" cookie, then Accept-Language, then fallback.
func Middleware(fallback string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var prefs []string
			if c, err := r.Cookie("lang"); err == nil && c.Value != "" {
				prefs = append(prefs, c.Value)
			}
			if al := r.Header.Get("Accept-Language"); al != "" {
				prefs = append(prefs, al)
			}
			lang := fallback
			if len(prefs) > 0 {
				lang = Match(prefs...)
			}
			ctx := WithLocalizer(r.Context(), NewLocalizer(lang))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
