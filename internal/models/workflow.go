package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Workflow is a named, ordered sequence of task nodes. UserID is nil only for
// predefined workflows.
type Workflow struct {
	ID           uuid.UUID      `gorm:"column:workflow_id;type:uuid;primaryKey" json:"workflow_id"`
	UserID       *uuid.UUID     `gorm:"type:uuid;index" json:"user_id"`
	Title        string         `gorm:"not null" json:"title"`
	Category     string         `gorm:"type:varchar(128);index" json:"category"`
	Description  string         `gorm:"type:text" json:"description"`
	IsPredefined bool           `gorm:"not null;default:false;index" json:"is_predefined"`
	CreatedAt    time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	Nodes        []WorkflowNode `gorm:"foreignKey:WorkflowID;references:ID" json:"nodes"`
}

func (Workflow) TableName() string { return "workflows" }

func (w *Workflow) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}

// OwnedBy reports whether userID owns the workflow.
func (w *Workflow) OwnedBy(userID uuid.UUID) bool {
	return w.UserID != nil && *w.UserID == userID
}

// WorkflowNode is a single task step. Position keeps insertion order.
type WorkflowNode struct {
	ID          uuid.UUID `gorm:"column:node_id;type:uuid;primaryKey" json:"node_id"`
	WorkflowID  uuid.UUID `gorm:"type:uuid;not null;index:idx_workflow_nodes_position,priority:1" json:"workflow_id"`
	Position    int       `gorm:"not null;index:idx_workflow_nodes_position,priority:2" json:"position"`
	Title       string    `json:"title"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (WorkflowNode) TableName() string { return "workflow_nodes" }

func (n *WorkflowNode) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}

// NodeIDs returns the ids of the workflow's nodes in order.
func (w *Workflow) NodeIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(w.Nodes))
	for i, n := range w.Nodes {
		ids[i] = n.ID
	}
	return ids
}
