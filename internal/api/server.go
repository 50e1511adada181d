package api

import (
	"context"
	"net/http"

	"gorm.io/gorm"

	"github.com/aitoolflow/engine/internal/api/handlers"
	"github.com/aitoolflow/engine/internal/api/validators"
	"github.com/aitoolflow/engine/internal/auth"
	"github.com/aitoolflow/engine/internal/cache"
	"github.com/aitoolflow/engine/internal/repository"
	"github.com/aitoolflow/engine/internal/services"
	"github.com/aitoolflow/engine/pkg/database"
)

// Options wire the HTTP surface to storage.
type Options struct {
	DB              *gorm.DB
	Cache           cache.SuggestionCache
	Tokens          *auth.TokenIssuer
	BcryptCost      int
	CatalogPageSize int
	SuggestionLimit int
	RateLimitRPS    float64
	RateLimitBurst  int
}

// New builds repositories, services and handlers and returns the routed handler.
func New(opts Options) http.Handler {
	sc := opts.Cache
	if sc == nil {
		sc = cache.Nop{}
	}

	userRepo := repository.NewUserRepository(opts.DB)
	toolRepo := repository.NewToolRepository(opts.DB)
	workflowRepo := repository.NewWorkflowRepository(opts.DB)
	suggestionRepo := repository.NewSuggestionRepository(opts.DB)

	authSvc := services.NewAuthService(userRepo, opts.Tokens, sc, opts.BcryptCost)
	catalogSvc := services.NewCatalogService(toolRepo, opts.CatalogPageSize)
	workflowSvc := services.NewWorkflowService(workflowRepo, sc)
	suggestionSvc := services.NewSuggestionService(suggestionRepo, workflowRepo, workflowSvc, sc, opts.SuggestionLimit)

	v := validators.New()
	return NewRouter(Dependencies{
		Verifier:         authSvc,
		Ready:            func(ctx context.Context) error { return database.Ping(ctx, opts.DB) },
		RateLimitRPS:     opts.RateLimitRPS,
		RateLimitBurst:   opts.RateLimitBurst,
		AuthHandler:      handlers.NewAuthHandler(authSvc, v),
		ToolsHandler:     handlers.NewToolsHandler(catalogSvc),
		WorkflowsHandler: handlers.NewWorkflowsHandler(workflowSvc, suggestionSvc, v),
	})
}
