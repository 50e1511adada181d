package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/aitoolflow/engine/internal/api/handlers"
	mw "github.com/aitoolflow/engine/internal/api/middleware"
)

type Dependencies struct {
	Verifier         mw.TokenVerifier
	Ready            handlers.Pinger
	RateLimitRPS     float64
	RateLimitBurst   int
	AuthHandler      *handlers.AuthHandler
	ToolsHandler     *handlers.ToolsHandler
	WorkflowsHandler *handlers.WorkflowsHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	if dep.RateLimitRPS > 0 {
		r.Use(mw.RateLimit(dep.RateLimitRPS, dep.RateLimitBurst))
	}
	r.Use(chimid.Compress(5))

	hh := handlers.NewHealthHandler(dep.Ready)
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Route("/api", func(api chi.Router) {
		api.Route("/ai_tools", func(tr chi.Router) {
			tr.Get("/", dep.ToolsHandler.List)
			tr.Get("/{tool_id}", dep.ToolsHandler.Get)
		})

		api.Post("/users", dep.AuthHandler.Register)
		api.Post("/users/login", dep.AuthHandler.Login)

		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.Verifier))

			protected.Delete("/users/me", dep.AuthHandler.DeleteAccount)

			protected.Route("/workflows", func(wr chi.Router) {
				wr.Get("/", dep.WorkflowsHandler.List)
				wr.Post("/", dep.WorkflowsHandler.Create)
				wr.Get("/templates", dep.WorkflowsHandler.Templates)
				wr.Route("/{workflow_id}", func(one chi.Router) {
					one.Get("/", dep.WorkflowsHandler.Get)
					one.Put("/", dep.WorkflowsHandler.Update)
					one.Delete("/", dep.WorkflowsHandler.Delete)
					one.Post("/duplicate", dep.WorkflowsHandler.Duplicate)
					one.Get("/nodes/{node_id}/suggestions", dep.WorkflowsHandler.Suggestions)
				})
			})
		})
	})

	return r
}
