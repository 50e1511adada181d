package repository

import (
	"gorm.io/gorm"

	"github.com/aitoolflow/engine/internal/models"
)

// registerModels returns all models that need migration.
func registerModels() []interface{} {
	return []interface{}{
		&models.User{},
		&models.AITool{},
		&models.Workflow{},
		&models.WorkflowNode{},
		&models.NodeSuggestion{},
	}
}

// Migrate executes the schema migrations. It is safe to run repeatedly.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't express.
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		addSuggestionRankIndex,
		addWorkflowOwnerListIndex,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

// addSuggestionRankIndex serves the per-node rank-ordered join.
func addSuggestionRankIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_suggestions_node_rank
		ON ai_tool_node_suggestions(node_id, rank, id)
	`).Error
}

func addWorkflowOwnerListIndex(db *gorm.DB) error {
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_workflows_owner_created
		ON workflows(user_id, created_at DESC)
	`).Error
}
