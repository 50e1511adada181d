package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Pricing tiers of a catalog tool.
const (
	PricingFree     = "Free"
	PricingPaid     = "Paid"
	PricingFreePlan = "FreePlan"
)

// AITool is a read-only catalog entry.
type AITool struct {
	ID           string         `gorm:"column:tool_id;type:varchar(64);primaryKey" json:"tool_id"`
	Name         string         `gorm:"not null;index" json:"name"`
	Description  string         `gorm:"type:text" json:"description"`
	Pricing      string         `gorm:"type:varchar(16);index" json:"pricing"`
	Capabilities string         `gorm:"type:text" json:"capabilities"`
	Outputs      string         `gorm:"type:text" json:"outputs,omitempty"`
	Tags         datatypes.JSON `json:"tags"`
	EaseOfUse    string         `gorm:"type:varchar(16)" json:"ease_of_use"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (AITool) TableName() string { return "ai_tools" }

// TagList decodes Tags into a string slice. Malformed data yields nil.
func (t AITool) TagList() []string {
	if len(t.Tags) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(t.Tags, &out); err != nil {
		return nil
	}
	return out
}

// TagsJSON encodes a tag set for storage.
func TagsJSON(tags ...string) datatypes.JSON {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return datatypes.JSON(b)
}

// NodeSuggestion ranks a tool for a node; lower rank is more relevant and the
// auto-increment ID breaks ties by insertion order.
type NodeSuggestion struct {
	ID     uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	NodeID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_node_tool,priority:1" json:"node_id"`
	ToolID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_node_tool,priority:2;index" json:"tool_id"`
	Rank   int       `gorm:"not null" json:"rank"`
}

func (NodeSuggestion) TableName() string { return "ai_tool_node_suggestions" }
