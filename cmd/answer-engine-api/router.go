// Package main provides the API router setup.
package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/veridia-ai/veridia/libs/answer-engine/cmd/answer-engine-api/handlers"
	"github.com/veridia-ai/veridia/libs/answer-engine/cmd/answer-engine-api/middleware"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/api/rpc"
	"github.com/veridia-ai/veridia/libs/answer-engine/internal/app"
)

// NewRouter creates the main API router with all routes configured.
func NewRouter(a *app.App) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))
	r.Use(chimiddleware.Timeout(a.Config.Server.ReadTimeout))

	// Health checks (unauthenticated)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"answer-engine"}`))
	})
	r.Get("/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := a.DB.PingContext(req.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	tenantHandler := handlers.NewTenantHandler(a.Logger, a.Repos)
	documentHandler := handlers.NewDocumentHandler(a.Logger, a.Repos, a.Pipeline, a.Jobs, a.Secrets, a.Audit, a.NewEmbedder)
	questionHandler := handlers.NewQuestionHandler(a.Logger, a.Repos, a.Generation, a.Jobs, a.Secrets)
	answerHandler := handlers.NewAnswerHandler(a.Logger, a.Repos, a.Review, a.Evaluator)
	jobHandler := handlers.NewJobHandler(a.Logger, a.Jobs)
	credentialHandler := handlers.NewCredentialHandler(a.Logger, a.Secrets, a.ValidateKey)

	auth := middleware.Auth(middleware.AuthConfig{
		Enabled: a.Config.Auth.Enabled,
		APIKeys: a.Config.Auth.APIKeys,
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(auth)

		r.Post("/tenants", tenantHandler.Create)
		r.Route("/tenants/{tenantID}", func(r chi.Router) {
			r.Get("/", tenantHandler.Get)

			r.Post("/projects", tenantHandler.CreateProject)
			r.Get("/projects", tenantHandler.ListProjects)

			r.Route("/projects/{projectID}", func(r chi.Router) {
				r.Post("/documents", documentHandler.Register)
				r.Get("/documents", documentHandler.List)
				r.Post("/questions", questionHandler.Create)
				r.Post("/questions/bulk", questionHandler.Bulk)
				r.Get("/questions", questionHandler.List)
			})

			r.Route("/documents/{documentID}", func(r chi.Router) {
				r.Get("/", documentHandler.Get)
				r.Delete("/", documentHandler.Delete)
			})

			r.Route("/questions/{questionID}", func(r chi.Router) {
				r.Delete("/", questionHandler.Delete)
				r.Post("/generate", questionHandler.Generate)
				r.Get("/answer", questionHandler.GetAnswer)
			})

			r.Route("/answers/{answerID}", func(r chi.Router) {
				r.Post("/review", answerHandler.Review)
				r.Get("/versions", answerHandler.Versions)
				r.Post("/evaluate", answerHandler.Evaluate)
			})

			r.Route("/settings/credentials/{provider}", func(r chi.Router) {
				r.Put("/", credentialHandler.Save)
				r.Get("/", credentialHandler.Get)
				r.Delete("/", credentialHandler.Delete)
			})
		})

		r.Route("/jobs/{jobID}", func(r chi.Router) {
			r.Get("/", jobHandler.Get)
			r.Post("/cancel", jobHandler.Cancel)
		})
	})

	// Connect RPC surface
	answerService := rpc.NewAnswerService(a.Logger, a.Repos, a.Generation, a.Review, a.Evaluator, a.Jobs)
	r.Route("/rpc", func(r chi.Router) {
		r.Use(auth)
		answerService.Mount(r)
	})

	return r
}
