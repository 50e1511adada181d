package types

import "github.com/aitoolflow/engine/internal/services"

type RegisterRequest struct {
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required"`
	FirstName *string `json:"first_name" validate:"omitempty,max=100"`
	LastName  *string `json:"last_name" validate:"omitempty,max=100"`
}

func (r *RegisterRequest) Input() *services.RegisterInput {
	return &services.RegisterInput{Email: r.Email, Password: r.Password, FirstName: r.FirstName, LastName: r.LastName}
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type NodeRequest struct {
	Title       string `json:"title" validate:"max=255"`
	Description string `json:"description"`
}

type WorkflowCreateRequest struct {
	Title       string        `json:"title" validate:"required,max=255"`
	Category    string        `json:"category" validate:"max=128"`
	Description string        `json:"description"`
	Nodes       []NodeRequest `json:"nodes" validate:"dive"`
}

func (r *WorkflowCreateRequest) Input() *services.CreateWorkflowInput {
	in := &services.CreateWorkflowInput{
		Title:       r.Title,
		Category:    r.Category,
		Description: r.Description,
		Nodes:       make([]services.NodeInput, len(r.Nodes)),
	}
	for i, n := range r.Nodes {
		in.Nodes[i] = services.NodeInput{Title: n.Title, Description: n.Description}
	}
	return in
}

// WorkflowUpdateRequest carries scalar fields only. Absent fields are left unchanged.
type WorkflowUpdateRequest struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=255"`
	Category    *string `json:"category" validate:"omitempty,max=128"`
	Description *string `json:"description"`
}

func (r *WorkflowUpdateRequest) Input() *services.UpdateWorkflowInput {
	return &services.UpdateWorkflowInput{Title: r.Title, Category: r.Category, Description: r.Description}
}
