package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	_ "github.com/aussiebroadwan/sessionkeeper/api/sessions" // Swagger docs
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/domain"
	"github.com/aussiebroadwan/sessionkeeper/internal/auth/service"
	"github.com/aussiebroadwan/sessionkeeper/pkg/httpx"
	"github.com/aussiebroadwan/sessionkeeper/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	tokens   Pinger
	users    Pinger
	gatherer prometheus.Gatherer

	AuthService    *service.AuthService
	SessionService *service.SessionService
	MFAService     *service.MFAService
}

// NewRouter builds a router with the request logging and CORS middleware.
// Services are set on the returned value before ApplyRoutes. A nil
// gatherer leaves /metrics unmounted.
func NewRouter(
	buildVersion string,
	tokens, users Pinger,
	gatherer prometheus.Gatherer,
	corsOrigins []string,
	logger *slog.Logger,
) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
		tokens:       tokens,
		users:        users,
		gatherer:     gatherer,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		httpx.CORS(corsOrigins),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerSessions()
	r.registerAdmin()
	r.registerMFA()
	r.registerSystem()

	r.Mux.Handle("/swagger/", httpSwagger.Handler())
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
//
//	@title			Sessionkeeper API
//	@version		0.1.0
//	@description	Token and session service. Access and refresh tokens are HS256 JWTs backed by a Redis
//	@description	session store, so every token can be revoked before it expires.
//
//	@contact.name				AussieBroadWAN Team
//	@contact.url				https://github.com/aussiebroadwan/sessionkeeper
//
//	@license.name				MIT
//	@license.url				https://opensource.org/licenses/MIT
//
//	@host						localhost:8080
//	@BasePath					/
//
//	@schemes					http https
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Access token. Format: "Bearer {token}".
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

// authn checks every bearer token against the session store, so a revoked
// access token stops working on its next request.
func (r *Router) authn() httpx.Middleware {
	return httpx.AuthnMiddleware(httpx.AuthenticatorFunc(r.authenticate), writeError)
}

func (r *Router) authenticate(ctx context.Context, token string) (httpx.Identity, error) {
	p, err := r.SessionService.Authenticate(ctx, token)
	if err != nil {
		return httpx.Identity{}, err
	}
	return httpx.Identity{
		Subject:   p.Subject,
		UserID:    p.UserID,
		Username:  p.Username,
		Roles:     p.Roles,
		SessionID: p.SessionID,
	}, nil
}

// secured is the chain for routes any logged in user may call.
func (r *Router) secured(h http.HandlerFunc, limit httpx.RateLimitConfig) http.Handler {
	return httpx.Chain(h,
		r.authn(),
		httpx.RateLimitByUser(limit),
	)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Auth: r.AuthService, Sessions: r.SessionService}

	// Credential checks: strict, and login also per identifier so one
	// address cannot spray many accounts within a single budget
	r.Mux.Handle("POST /v1/auth/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
	r.Mux.Handle("POST /v1/auth/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "identifier"),
		),
	)
	r.Mux.Handle("POST /v1/auth/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	r.Mux.Handle("POST /v1/auth/logout", r.secured(h.HandleLogout, httpx.ModerateLimit))
	r.Mux.Handle("POST /v1/auth/logout-all", r.secured(h.HandleLogoutAll, httpx.ModerateLimit))

	// Password guesses against a stolen access token are still guesses
	r.Mux.Handle("POST /v1/auth/password", r.secured(h.HandleChangePassword, httpx.StrictLimit))
	r.Mux.Handle("POST /v1/auth/deactivate", r.secured(h.HandleDeactivateSelf, httpx.StrictLimit))

	// Reset requests are also limited per address so one client cannot
	// flood a single inbox
	r.Mux.Handle("POST /v1/auth/password/reset-request",
		httpx.Chain(http.HandlerFunc(h.HandleRequestPasswordReset),
			httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email"),
		),
	)
	r.Mux.Handle("POST /v1/auth/password/reset-confirm",
		httpx.Chain(http.HandlerFunc(h.HandleConfirmPasswordReset),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)
}

func (r *Router) registerSessions() {
	h := &SessionsHandler{Sessions: r.SessionService}

	r.Mux.Handle("GET /v1/sessions", r.secured(h.HandleList, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/sessions", r.secured(h.HandleRevokeOthers, httpx.ModerateLimit))
	r.Mux.Handle("DELETE /v1/sessions/{id}", r.secured(h.HandleRevoke, httpx.ModerateLimit))
}

func (r *Router) registerAdmin() {
	h := &AdminHandler{Auth: r.AuthService, Sessions: r.SessionService}

	admin := func(hf http.HandlerFunc) http.Handler {
		return httpx.Chain(hf,
			r.authn(),
			httpx.RequireAnyRole(domain.RoleAdmin),
			httpx.RateLimitByUser(httpx.ModerateLimit),
		)
	}

	r.Mux.Handle("DELETE /v1/admin/users/{id}/sessions", admin(h.HandleRevokeUserSessions))
	r.Mux.Handle("POST /v1/admin/users/{id}/deactivate", admin(h.HandleDeactivate))
	r.Mux.Handle("POST /v1/admin/users/{id}/reactivate", admin(h.HandleReactivate))
}

func (r *Router) registerMFA() {
	h := &MFAHandler{MFA: r.MFAService}

	r.Mux.Handle("POST /v1/mfa/totp/enroll", r.secured(h.HandleEnroll, httpx.ModerateLimit))

	// Six digit codes: strict to stop brute force
	r.Mux.Handle("POST /v1/mfa/totp/confirm", r.secured(h.HandleConfirm, httpx.StrictLimit))
	r.Mux.Handle("DELETE /v1/mfa/totp", r.secured(h.HandleRemove, httpx.StrictLimit))
}

func (r *Router) registerSystem() {
	// Monitoring polls often
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.tokens, r.users),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	if r.gatherer != nil {
		r.Mux.Handle("GET /metrics",
			httpx.Chain(promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}),
				httpx.RateLimitByIP(httpx.PublicLimit),
			),
		)
	}
}
