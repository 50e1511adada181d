package testhelpers

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aitoolflow/engine/internal/models"
)

// Tool builds a catalog entry.
func Tool(id, name, pricing string, tags ...string) models.AITool {
	return models.AITool{
		ID:           id,
		Name:         name,
		Description:  name + " description",
		Pricing:      pricing,
		Capabilities: "text",
		Tags:         models.TagsJSON(tags...),
		EaseOfUse:    "Beginner",
	}
}

// InsertTools writes tools directly.
func InsertTools(t *testing.T, db *gorm.DB, tools ...models.AITool) {
	t.Helper()
	if err := db.WithContext(context.Background()).Create(&tools).Error; err != nil {
		t.Fatalf("insert tools: %v", err)
	}
}

// Suggest ranks tools for a node, in insertion order.
func Suggest(t *testing.T, db *gorm.DB, nodeID uuid.UUID, ranked map[string]int, order ...string) {
	t.Helper()
	for _, toolID := range order {
		s := models.NodeSuggestion{NodeID: nodeID, ToolID: toolID, Rank: ranked[toolID]}
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("insert suggestion: %v", err)
		}
	}
}

// InsertTemplate stores a predefined workflow with the given node titles.
func InsertTemplate(t *testing.T, db *gorm.DB, title string, nodeTitles ...string) *models.Workflow {
	t.Helper()
	w := &models.Workflow{Title: title, Category: "Templates", IsPredefined: true}
	if err := db.Omit("Nodes").Create(w).Error; err != nil {
		t.Fatalf("insert template: %v", err)
	}
	for i, nt := range nodeTitles {
		n := models.WorkflowNode{WorkflowID: w.ID, Position: i, Title: nt}
		if err := db.Create(&n).Error; err != nil {
			t.Fatalf("insert template node: %v", err)
		}
		w.Nodes = append(w.Nodes, n)
	}
	return w
}
