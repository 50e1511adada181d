package types

import (
	"time"

	"github.com/google/uuid"

	"github.com/aitoolflow/engine/internal/models"
)

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type ToolsResponse struct {
	Tools []ToolResponse `json:"tools"`
}

type SuggestionsResponse struct {
	Suggestions []ToolResponse `json:"suggestions"`
}

type ToolResponse struct {
	ToolID       string    `json:"tool_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	Pricing      string    `json:"pricing"`
	Capabilities string    `json:"capabilities"`
	Outputs      string    `json:"outputs,omitempty"`
	Tags         []string  `json:"tags"`
	EaseOfUse    string    `json:"ease_of_use"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewToolResponse(t models.AITool) ToolResponse {
	tags := t.TagList()
	if tags == nil {
		tags = []string{}
	}
	return ToolResponse{
		ToolID:       t.ID,
		Name:         t.Name,
		Description:  t.Description,
		Pricing:      t.Pricing,
		Capabilities: t.Capabilities,
		Outputs:      t.Outputs,
		Tags:         tags,
		EaseOfUse:    t.EaseOfUse,
		CreatedAt:    t.CreatedAt,
	}
}

func NewToolResponses(tools []models.AITool) []ToolResponse {
	out := make([]ToolResponse, len(tools))
	for i, t := range tools {
		out[i] = NewToolResponse(t)
	}
	return out
}

type NodeResponse struct {
	NodeID      uuid.UUID `json:"node_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

type WorkflowResponse struct {
	WorkflowID   uuid.UUID      `json:"workflow_id"`
	UserID       *uuid.UUID     `json:"user_id"`
	Title        string         `json:"title"`
	Category     string         `json:"category"`
	Description  string         `json:"description"`
	IsPredefined bool           `json:"is_predefined"`
	CreatedAt    time.Time      `json:"created_at"`
	Nodes        []NodeResponse `json:"nodes"`
}

func NewWorkflowResponse(w *models.Workflow) WorkflowResponse {
	nodes := make([]NodeResponse, len(w.Nodes))
	for i, n := range w.Nodes {
		nodes[i] = NodeResponse{NodeID: n.ID, Title: n.Title, Description: n.Description, CreatedAt: n.CreatedAt}
	}
	return WorkflowResponse{
		WorkflowID:   w.ID,
		UserID:       w.UserID,
		Title:        w.Title,
		Category:     w.Category,
		Description:  w.Description,
		IsPredefined: w.IsPredefined,
		CreatedAt:    w.CreatedAt,
		Nodes:        nodes,
	}
}

func NewWorkflowResponses(ws []models.Workflow) []WorkflowResponse {
	out := make([]WorkflowResponse, len(ws))
	for i := range ws {
		out[i] = NewWorkflowResponse(&ws[i])
	}
	return out
}

// WorkflowMetaResponse answers PUT, which never touches nodes.
type WorkflowMetaResponse struct {
	WorkflowID  uuid.UUID `json:"workflow_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
}

func NewWorkflowMetaResponse(w *models.Workflow) WorkflowMetaResponse {
	return WorkflowMetaResponse{WorkflowID: w.ID, Title: w.Title, Category: w.Category, Description: w.Description}
}
