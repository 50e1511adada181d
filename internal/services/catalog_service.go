package services

import (
	"context"

	"github.com/aitoolflow/engine/internal/models"
	"github.com/aitoolflow/engine/internal/repository"
)

// DefaultPageSize caps catalog searches when no page size is configured.
const DefaultPageSize = 5

type CatalogService interface {
	// Search returns one page (1-based) of tools matching every non-empty filter.
	Search(ctx context.Context, filters repository.ToolFilters, page int) ([]models.AITool, error)
	GetTool(ctx context.Context, toolID string) (*models.AITool, error)
}

type catalogService struct {
	tools    repository.ToolRepository
	pageSize int
}

func NewCatalogService(tools repository.ToolRepository, pageSize int) CatalogService {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &catalogService{tools: tools, pageSize: pageSize}
}

func (s *catalogService) Search(ctx context.Context, filters repository.ToolFilters, page int) ([]models.AITool, error) {
	if page < 1 {
		page = 1
	}
	return s.tools.Search(ctx, filters, (page-1)*s.pageSize, s.pageSize)
}

func (s *catalogService) GetTool(ctx context.Context, toolID string) (*models.AITool, error) {
	var t models.AITool
	if err := s.tools.GetByID(ctx, toolID, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
