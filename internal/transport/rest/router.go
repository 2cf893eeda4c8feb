package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/sigefi/budget-approval/internal/auth"
	"github.com/sigefi/budget-approval/internal/demande"
	"github.com/sigefi/budget-approval/internal/journal"
	"github.com/sigefi/budget-approval/internal/transport/middleware"
	"github.com/sigefi/budget-approval/internal/transport/swagger"
)

// RegisterAllRoutes wires the HTTP surface. Everything under /api/v1 except
// health requires a bearer token; decision routes are additionally gated on
// the approver capability.
func RegisterAllRoutes(
	router *chi.Mux,
	db *sql.DB,
	authMiddleware *auth.Middleware,
	demandeHandler *demande.Handler,
	journalHandler *journal.Handler,
	allowedOrigins string,
	logger *slog.Logger,
) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS(allowedOrigins))
	router.Use(middleware.RequestID)
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.RecoveryMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Group(func(pr chi.Router) {
			pr.Use(authMiddleware.Authenticate)

			pr.Route("/demandes", func(dr chi.Router) {
				dr.Post("/", demandeHandler.CreateDemande)
				dr.Get("/", demandeHandler.MesDemandes)
				dr.Get("/finalisees", demandeHandler.Finalisees)

				dr.Group(func(ar chi.Router) {
					ar.Use(authMiddleware.RequireApprover)
					ar.Get("/avalider", demandeHandler.AValider)
					ar.Put("/{id}/valider", demandeHandler.Valider)
					ar.Put("/{id}/refuser", demandeHandler.Refuser)
				})

				dr.Group(func(fr chi.Router) {
					fr.Use(authMiddleware.RequireFinanceDirector)
					fr.Get("/daf-a-valider", demandeHandler.DAFAValider)
				})

				dr.Get("/{id}", demandeHandler.GetDemande)
			})

			pr.Route("/journaux", func(jr chi.Router) {
				jr.Group(func(ar chi.Router) {
					ar.Use(authMiddleware.RequireApprover)
					ar.Get("/avalider", journalHandler.AValider)
					ar.Put("/{id}/valider", journalHandler.Valider)
					ar.Put("/{id}/refuser", journalHandler.Refuser)
				})
			})
		})
	})
}
