package services

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/aitoolflow/engine/internal/cache"
	"github.com/aitoolflow/engine/internal/models"
	"github.com/aitoolflow/engine/internal/repository"
)

// DefaultSuggestionLimit is the number of tools returned per node.
const DefaultSuggestionLimit = 5

const suggestionLoadTimeout = 10 * time.Second

type SuggestionService interface {
	// SuggestionsForNode returns at most limit tools in ascending rank order.
	// It never mutates workflow state and returns an empty slice when nothing matches.
	SuggestionsForNode(ctx context.Context, nodeID uuid.UUID, limit int) ([]models.AITool, error)
	// ForWorkflowNode checks that requesterID may read the workflow before resolving.
	// Nodes outside the workflow resolve to an empty list.
	ForWorkflowNode(ctx context.Context, workflowID, nodeID, requesterID uuid.UUID) ([]models.AITool, error)
}

type suggestionService struct {
	suggestions  repository.SuggestionRepository
	workflows    repository.WorkflowRepository
	workflowSvc  WorkflowService
	cache        cache.SuggestionCache
	defaultLimit int
	group        singleflight.Group
}

func NewSuggestionService(suggestions repository.SuggestionRepository, workflows repository.WorkflowRepository, workflowSvc WorkflowService, sc cache.SuggestionCache, defaultLimit int) SuggestionService {
	if sc == nil {
		sc = cache.Nop{}
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultSuggestionLimit
	}
	return &suggestionService{
		suggestions:  suggestions,
		workflows:    workflows,
		workflowSvc:  workflowSvc,
		cache:        sc,
		defaultLimit: defaultLimit,
	}
}

func (s *suggestionService) SuggestionsForNode(ctx context.Context, nodeID uuid.UUID, limit int) ([]models.AITool, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if tools, ok := s.cache.Get(ctx, nodeID, limit); ok {
		return tools, nil
	}

	// The shared load outlives any single caller; each caller waits on its own ctx.
	ch := s.group.DoChan(nodeID.String()+":"+strconv.Itoa(limit), func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), suggestionLoadTimeout)
		defer cancel()
		tools, err := s.suggestions.ToolsForNode(lctx, nodeID, limit)
		if err != nil {
			return nil, err
		}
		if tools == nil {
			tools = []models.AITool{}
		}
		s.cache.Set(lctx, nodeID, limit, tools)
		return tools, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]models.AITool), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *suggestionService) ForWorkflowNode(ctx context.Context, workflowID, nodeID, requesterID uuid.UUID) ([]models.AITool, error) {
	if _, err := s.workflowSvc.Get(ctx, workflowID, requesterID); err != nil {
		return nil, err
	}
	ok, err := s.workflows.HasNode(ctx, workflowID, nodeID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []models.AITool{}, nil
	}
	return s.SuggestionsForNode(ctx, nodeID, 0)
}
