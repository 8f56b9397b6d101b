package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	mw "github.com/lorrc/service-desk-realtime/internal/adapters/primary/http/middleware"
	"github.com/lorrc/service-desk-realtime/internal/auth"
	"github.com/lorrc/service-desk-realtime/internal/core/domain"
)

// RouterDeps holds everything the HTTP surface is built from. Nil
// limiters disable rate limiting.
type RouterDeps struct {
	Logger         *slog.Logger
	TokenManager   *auth.TokenManager
	AllowedOrigins []string

	GeneralLimiter *mw.RateLimiter
	ActionLimiter  *mw.RateLimiter

	Health        *HealthHandler
	Me            *MeHandler
	Stream        *StreamHandler
	WebSocket     *WebSocketHandler
	Sync          *SyncHandler
	Tickets       *TicketHandler
	Notifications *NotificationHandler
}

// NewRouter mounts every route of the service.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(d.Logger))
	r.Use(mw.RecoveryLogger(d.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   d.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", mw.RequestIDHeader},
		ExposedHeaders:   []string{mw.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if d.Health != nil {
		d.Health.RegisterRoutes(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(mw.JWTMiddleware(d.TokenManager))

		// Long-lived push channels are exempt from request rate limits.
		r.Get("/stream", d.Stream.ServeHTTP)
		if d.WebSocket != nil {
			r.Get("/ws", d.WebSocket.ServeHTTP)
		}

		r.Group(func(r chi.Router) {
			if d.GeneralLimiter != nil {
				r.Use(d.GeneralLimiter.Middleware)
			}

			r.Get("/sync", d.Sync.HandleSnapshot)
			if d.Me != nil {
				r.Route("/me", d.Me.RegisterRoutes)
			}

			var actions []func(http.Handler) http.Handler
			if d.ActionLimiter != nil {
				actions = append(actions, d.ActionLimiter.Middleware)
			}
			r.Route("/support/tickets", func(r chi.Router) {
				d.Tickets.RegisterRoutes(r, actions...)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole(domain.RoleAdmin, domain.RoleSuperAdmin))
					r.Route("/notifications", d.Notifications.RegisterRoutes)
				})
				r.Group(func(r chi.Router) {
					r.Use(mw.RequireRole(domain.RoleSuperAdmin))
					r.Post("/system-events", d.Sync.HandleSystemEvent)
				})
			})
		})
	})

	return r
}
