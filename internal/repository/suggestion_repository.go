package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aitoolflow/engine/internal/models"
	appErr "github.com/aitoolflow/engine/pkg/errors"
)

type SuggestionRepository interface {
	// ToolsForNode joins suggestions to the catalog, ordered by rank then
	// insertion order, truncated to limit.
	ToolsForNode(ctx context.Context, nodeID uuid.UUID, limit int) ([]models.AITool, error)
	Upsert(ctx context.Context, suggestions []models.NodeSuggestion) error
}

type suggestionRepository struct {
	db *gorm.DB
}

func NewSuggestionRepository(db *gorm.DB) SuggestionRepository {
	return &suggestionRepository{db: db}
}

func (r *suggestionRepository) ToolsForNode(ctx context.Context, nodeID uuid.UUID, limit int) ([]models.AITool, error) {
	out := []models.AITool{}
	err := r.db.WithContext(ctx).Model(&models.AITool{}).
		Select("ai_tools.*").
		Joins("INNER JOIN ai_tool_node_suggestions s ON s.tool_id = ai_tools.tool_id").
		Where("s.node_id = ?", nodeID).
		Order("s.rank ASC").Order("s.id ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "get node suggestions failed")
	}
	return out, nil
}

func (r *suggestionRepository) Upsert(ctx context.Context, suggestions []models.NodeSuggestion) error {
	if len(suggestions) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "node_id"}, {Name: "tool_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"rank"}),
	}).Create(&suggestions).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "upsert node suggestions failed")
	}
	return nil
}
