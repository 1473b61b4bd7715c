package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/vasiliy-maslov/storefront/internal/auth"
)

// RouteRegistrar is implemented by every handler in this package.
type RouteRegistrar interface {
	RegisterRoutes(router chi.Router)
}

// NewRouter mounts the handlers behind the common middleware stack. mediaRoot, when set,
// is served under mediaURL. secureCookies marks the CSRF cookie Secure.
func NewRouter(tokens *auth.Manager, mediaURL, mediaRoot string, secureCookies bool, handlers ...RouteRegistrar) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(csrfProtect(tokens.CSRFKey(), secureCookies))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})
	r.Get("/csrf-token", handleCSRFToken)

	if mediaRoot != "" && mediaURL != "" {
		prefix := "/" + strings.Trim(mediaURL, "/")
		r.Handle(prefix+"/*", http.StripPrefix(prefix+"/", http.FileServer(http.Dir(mediaRoot))))
	}

	r.Group(func(r chi.Router) {
		r.Use(tokens.Authenticate)
		for _, h := range handlers {
			h.RegisterRoutes(r)
		}
	})

	return r
}
