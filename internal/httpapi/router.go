package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"schoold/internal/models"
)

// Routes constructs the chi router containing all API endpoints.
func (a *API) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	allowed := a.config.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	r.Use(httprate.Limit(300, time.Minute))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	r.Method("GET", "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/auth", func(r chi.Router) {
				// Credential endpoints get a tighter per-IP ceiling than the
				// global limit.
				r.Use(httprate.LimitByIP(30, time.Minute))

				r.Post("/register", a.handleRegister)
				r.Get("/verify-email", a.handleVerifyEmail)
				r.Post("/login", a.handleLogin)
				r.Post("/refresh", a.handleRefresh)
				r.Post("/forgot-password", a.handleForgotPassword)
				r.Post("/verify-otp", a.handleVerifyOTP)
				r.Post("/reset-password", a.handleResetPassword)
				r.Post("/complete-setup", a.handleCompleteSetup)
				r.Post("/logout", a.handleLogout)

				r.Group(func(r chi.Router) {
					r.Use(a.sessionGuard)
					r.Get("/me", a.handleMe)
				})
			})

			r.Group(func(r chi.Router) {
				r.Use(a.sessionGuard)

				r.Route("/teachers", func(r chi.Router) {
					r.Use(a.requireRole(models.RoleAdmin))
					r.Get("/pending", a.handlePendingTeachers)
					r.Post("/invite", a.handleInviteTeacher)
					r.Post("/{id}/approve", a.handleApproveTeacher)
					r.Post("/{id}/reject", a.handleRejectTeacher)
				})

				r.With(a.requireRole(models.RoleAdmin, models.RoleTeacher)).
					Post("/students/invite", a.handleInviteStudent)

				r.With(a.requireRole(models.RoleTeacher)).
					Post("/assignments", a.handleCreateAssignment)
				r.With(a.requireRole(models.RoleStudent)).
					Post("/assignments/{id}/submissions", a.handleCreateSubmission)

				r.Route("/modules", func(r chi.Router) {
					r.Use(a.requireRole(models.RoleAdmin, models.RoleTeacher))
					r.Post("/", a.handleCreateModule)
					r.Delete("/{id}", a.handleDeleteModule)
				})

				r.Route("/storage", func(r chi.Router) {
					r.Post("/signed-upload", a.handleSignedUpload)
					r.Get("/signed-download", a.handleSignedDownload)
					r.Post("/upload", a.handleDirectUpload)
					r.Post("/attachments", a.handleRecordAttachment)
					r.Delete("/attachments", a.handleDeleteAttachment)
					r.With(a.requireRole(models.RoleAdmin, models.RoleTeacher)).
						Delete("/attachments/all", a.handleDeleteAllAttachments)
				})
			})
		})

		// No request timeout here: the stream stays open until the client
		// disconnects.
		r.Group(func(r chi.Router) {
			r.Use(a.sessionGuard)
			r.Use(a.requireRole(models.RoleAdmin, models.RoleTeacher))
			r.Get("/notifications/stream", a.handleNotificationStream)
		})
	})

	return r
}
