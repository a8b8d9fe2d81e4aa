package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
	"golang.org/x/crypto/bcrypt"

	"github.com/custodia-fin/custodia/internal/identity"
	"github.com/custodia-fin/custodia/internal/observability"
	"github.com/custodia-fin/custodia/internal/shared"
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics
}

// MiddlewareStack installs the Custodia middleware chain.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		ReferrerPolicy:     "strict-origin-when-cross-origin",
		SSLRedirect:        cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:    map[string]string{"X-Forwarded-Proto": "https"},
	})

	timeout := 30 * time.Second
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}

	middlewares := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		middleware.Recoverer,
		middleware.Timeout(timeout),
		func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := secureMiddleware.Process(w, r); err != nil {
					cfg.Logger.Warn("secure headers blocked request", slog.Any("error", err))
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				next.ServeHTTP(w, r)
			})
		},
		middleware.Compress(5),
		httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)),
		ActorMiddleware(cfg.Logger, cfg.Config),
	}
	if cfg.Metrics != nil {
		middlewares = append(middlewares, func(next http.Handler) http.Handler {
			return cfg.Metrics.Middleware(next)
		})
	}
	return middlewares
}

// ActorMiddleware authenticates mutating requests with the shared API key
// and binds the X-Actor identity into the request context. Reads pass
// through without credentials.
func ActorMiddleware(logger *slog.Logger, cfg *Config) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			if cfg != nil && cfg.APIKeyHash != "" {
				key := r.Header.Get("X-API-Key")
				if key == "" {
					http.Error(w, "missing api key", http.StatusUnauthorized)
					return
				}
				if err := bcrypt.CompareHashAndPassword([]byte(cfg.APIKeyHash), []byte(key)); err != nil {
					if logger != nil {
						logger.Warn("api key rejected", slog.String("path", r.URL.Path))
					}
					http.Error(w, "invalid api key", http.StatusUnauthorized)
					return
				}
			}

			raw := r.Header.Get("X-Actor")
			if raw == "" {
				http.Error(w, "missing actor identity", http.StatusUnauthorized)
				return
			}
			actor, err := identity.Parse(raw)
			if err != nil || actor.IsZero() {
				http.Error(w, "invalid actor identity", http.StatusBadRequest)
				return
			}

			next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
		})
	}
}
