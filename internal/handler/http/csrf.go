package http

import (
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/auth"
)

const (
	CSRFHeader = "X-CSRF-Token"
	CSRFField  = "csrf_token"

	khaltiCallbackPath = "/verify-khalti/"
)

type CSRFTokenResponse struct {
	Token string `json:"csrf_token"`
}

// csrfProtect requires a token on unsafe requests authenticated by the session cookie.
// Bearer-token clients, anonymous requests and the gateway callback are not checked.
func csrfProtect(key []byte, secure bool) func(http.Handler) http.Handler {
	protect := csrf.Protect(key,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.FieldName(CSRFField),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Warn().Err(csrf.FailureReason(r)).Str("path", r.URL.Path).Msg("handler: CSRF check failed")
			respondWithError(w, http.StatusForbidden, "CSRF token missing or invalid")
		})),
	)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.TLS == nil {
				r = csrf.PlaintextHTTPRequest(r)
			}
			if !auth.CookieAuthenticated(r) || r.URL.Path == khaltiCallbackPath {
				r = csrf.UnsafeSkipCheck(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

func handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, CSRFTokenResponse{Token: csrf.Token(r)})
}
