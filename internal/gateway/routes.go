// ABOUTME: chi routing for the workspace API, plus request logging middleware
// ABOUTME: Optional bearer auth on /api and /ws restricts callers to the workspace owner

package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/2389/scout-desk/internal/auth"
	"github.com/2389/scout-desk/internal/push"
	"github.com/2389/scout-desk/internal/records"
)

func (g *Gateway) routes(rec *records.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(g.logger))
	r.Use(chimw.Recoverer)

	// Health endpoints - no auth required
	r.Get("/health", g.handleHealth)
	r.Get("/health/ready", g.handleReady)

	r.Group(func(r chi.Router) {
		if g.verifier != nil {
			r.Use(auth.HTTPAuthMiddleware(g.verifier))
			g.logger.Info("HTTP auth middleware enabled")
		} else {
			g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
		}
		owned := func(r chi.Router) {
			if g.verifier != nil {
				r.Use(g.requireOwner)
			}
		}

		r.Route("/api", func(r chi.Router) {
			// Reachable with an expired workspace credential so it can be replaced.
			r.Put("/credentials", g.handleSetCredential)
			r.Delete("/credentials", g.handleClearCredential)

			r.Group(func(r chi.Router) {
				owned(r)

				r.Route("/sessions", func(r chi.Router) {
					r.Get("/", g.handleListSessions)
					r.Post("/", g.handleCreateSession)
					r.Patch("/{id}", g.handleRenameSession)
					r.Delete("/{id}", g.handleDeleteSession)
					r.Post("/{id}/select", g.handleSelectSession)
				})

				r.Get("/conversation", g.handleConversation)
				r.Post("/conversation/messages", g.handleSubmit)

				r.Route("/prospects", func(r chi.Router) {
					r.Post("/search", g.handleSearch)
					r.Post("/companies", g.handleSearchCompanies)
					r.Post("/save", g.handleSaveProspect)
					r.Get("/saved", g.handleListSaved)
				})
				r.Get("/credits", g.handleCredits)

				r.Route("/research", func(r chi.Router) {
					r.Post("/jobs", g.handleOpenJob)
					r.Get("/jobs/{id}", g.handleGetJob)
					r.Post("/jobs/{id}/generate", g.handleGenerate)
					r.Post("/jobs/{id}/save", g.handleSaveReport)
					r.Delete("/jobs/{id}", g.handleCloseJob)
					r.Get("/reports", g.handleListReports)
					r.Delete("/reports/{id}", g.handleDeleteReport)
				})

				r.Get("/notices", g.handleListNotices)
				r.Delete("/notices/{id}", g.handleDismissNotice)
			})
		})

		r.Group(func(r chi.Router) {
			owned(r)
			r.Handle("/ws/changes", push.NewWebSocketHandler(g.broadcaster, g.resolveOwner, nil, g.logger))
			g.mcpServer.RegisterRoutes(r)
		})
	})

	// The records endpoints carry their own bearer auth.
	if rec != nil {
		rec.RegisterRoutes(r, g.verifier)
	}

	return r
}

// requireOwner rejects bearer tokens that belong to someone other than the
// analyst this workspace acts for.
func (g *Gateway) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, err := auth.OwnerFromContext(r.Context())
		if err != nil {
			g.writeError(w, r, err)
			return
		}
		owner, err := g.creds.OwnerID()
		if err == nil && caller != owner {
			writeJSONError(w, http.StatusForbidden, "token does not belong to this workspace")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Gateway) resolveOwner(r *http.Request) (string, error) {
	return g.creds.OwnerID()
}

// requestLogger logs each request through slog once it completes.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
