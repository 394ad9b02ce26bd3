package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/example/class-booking/internal/application"
	"github.com/example/class-booking/internal/ratelimit"
)

type RouterConfig struct {
	Auth     *AuthHandler
	Classes  *ClassHandler
	Bookings *BookingHandler
	Users    *UserHandler

	Sessions SessionValidator
	Limiter  RateLimiter
	Metrics  RequestObserver
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
	Logger         *slog.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)
	r := chi.NewRouter()
	r.Use(RequestLogger(logger), Metrics(cfg.Metrics))

	responder := newResponder(logger)
	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		responder.handleServiceError(req.Context(), w, application.ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		responder.writeCode(req.Context(), w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		responder.writeJSON(req.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	requireSession := RequireSession(cfg.Sessions, logger)
	requireStaff := RequireStaff(logger)
	limit := func(rule ratelimit.Rule) func(http.Handler) http.Handler {
		return RateLimit(cfg.Limiter, cfg.Metrics, rule, logger)
	}

	if cfg.Auth != nil {
		r.Route("/auth", func(r chi.Router) {
			r.With(limit(ratelimit.RuleLogin)).Post("/login", cfg.Auth.Login)
			r.With(requireSession).Post("/logout", cfg.Auth.Logout)
			r.With(limit(ratelimit.RuleRegister)).Post("/register", cfg.Auth.Register)
			r.With(limit(ratelimit.RuleSendVerifyCode)).Post("/send-verify-code", cfg.Auth.SendVerifyCode)
			r.With(limit(ratelimit.RuleVerifyEmail)).Post("/verify-email-code", cfg.Auth.VerifyEmailCode)
			r.With(limit(ratelimit.RuleForgotPassword)).Post("/forgot-password", cfg.Auth.ForgotPassword)
			r.With(limit(ratelimit.RuleResetPassword)).Post("/reset-password", cfg.Auth.ResetPassword)
		})
		r.With(requireSession, limit(ratelimit.RuleDeleteAccount)).Delete("/account", cfg.Auth.DeleteAccount)
	}

	if cfg.Classes != nil {
		r.Route("/classes", func(r chi.Router) {
			r.With(OptionalSession(cfg.Sessions)).Get("/", cfg.Classes.List)
			r.Get("/{id}", cfg.Classes.Get)

			r.Group(func(r chi.Router) {
				r.Use(requireSession, requireStaff)
				r.Post("/", cfg.Classes.Create)
				r.Patch("/{id}", cfg.Classes.Update)
				r.Delete("/{id}", cfg.Classes.Delete)
				if cfg.Bookings != nil {
					r.Get("/{id}/bookings", cfg.Bookings.ListForSession)
				}
			})
		})
	}

	if cfg.Bookings != nil {
		r.Group(func(r chi.Router) {
			r.Use(requireSession)
			r.Post("/bookings", cfg.Bookings.Create)
			r.Delete("/bookings/{id}", cfg.Bookings.Cancel)
			r.Get("/my/bookings", cfg.Bookings.ListMine)
		})
	}

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireSession, requireStaff)

		if cfg.Bookings != nil {
			r.Post("/bookings/{id}/cancel", cfg.Bookings.AdminCancel)
			r.Put("/bookings/{id}/attendance", cfg.Bookings.SetAttendance)
		}
		if cfg.Users != nil {
			r.Get("/users", cfg.Users.List)
			r.Post("/users", cfg.Users.Create)
			r.Get("/users/{id}", cfg.Users.Get)
			r.Patch("/users/{id}", cfg.Users.Update)
			r.Put("/users/{id}/disabled", cfg.Users.SetDisabled)
			r.Put("/users/{id}/role", cfg.Users.SetRole)
		}
	})

	return r
}
