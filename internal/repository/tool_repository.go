package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aitoolflow/engine/internal/models"
	appErr "github.com/aitoolflow/engine/pkg/errors"
)

// ToolFilters are conjunctive; empty fields are ignored.
type ToolFilters struct {
	Pricing   string
	Tags      string
	Name      string
	EaseOfUse string
}

type ToolRepository interface {
	BaseRepository[models.AITool]
	Search(ctx context.Context, f ToolFilters, offset, limit int) ([]models.AITool, error)
	Upsert(ctx context.Context, tools []models.AITool) error
}

type toolRepository struct {
	BaseRepository[models.AITool]
	db *gorm.DB
}

func NewToolRepository(db *gorm.DB) ToolRepository {
	return &toolRepository{BaseRepository: NewBaseRepository[models.AITool](db, "tool_id", "tool"), db: db}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a lower-cased LIKE pattern matching s as a literal substring.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

// tagMatchClause matches the pattern against each element of the tags array,
// so JSON punctuation never takes part in the match.
func tagMatchClause(dialect string) string {
	if dialect == "postgres" {
		return `EXISTS (
			SELECT 1 FROM jsonb_array_elements_text(
				CASE WHEN jsonb_typeof(ai_tools.tags) = 'array' THEN ai_tools.tags ELSE '[]'::jsonb END
			) AS tag(value)
			WHERE LOWER(tag.value) LIKE ? ESCAPE '\'
		)`
	}
	return `EXISTS (
		SELECT 1 FROM json_each(CASE WHEN json_valid(ai_tools.tags) THEN ai_tools.tags ELSE '[]' END) AS tag
		WHERE tag.type = 'text' AND LOWER(tag.value) LIKE ? ESCAPE '\'
	)`
}

func (r *toolRepository) Search(ctx context.Context, f ToolFilters, offset, limit int) ([]models.AITool, error) {
	q := r.db.WithContext(ctx).Model(&models.AITool{})
	if f.Pricing != "" {
		q = q.Where("pricing = ?", f.Pricing)
	}
	if f.EaseOfUse != "" {
		q = q.Where("ease_of_use = ?", f.EaseOfUse)
	}
	if f.Tags != "" {
		q = q.Where(tagMatchClause(r.db.Dialector.Name()), containsPattern(f.Tags))
	}
	if f.Name != "" {
		q = q.Where(`LOWER(name) LIKE ? ESCAPE '\'`, containsPattern(f.Name))
	}

	out := []models.AITool{}
	if err := q.Order("name ASC").Order("tool_id ASC").Offset(offset).Limit(limit).Find(&out).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "search tools failed")
	}
	return out, nil
}

func (r *toolRepository) Upsert(ctx context.Context, tools []models.AITool) error {
	if len(tools) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tool_id"}},
		UpdateAll: true,
	}).Create(&tools).Error
	if err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "upsert tools failed")
	}
	return nil
}
