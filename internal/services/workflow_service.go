package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aitoolflow/engine/internal/cache"
	"github.com/aitoolflow/engine/internal/models"
	"github.com/aitoolflow/engine/internal/repository"
	appErr "github.com/aitoolflow/engine/pkg/errors"
	"github.com/aitoolflow/engine/pkg/logger"
)

// WorkflowService owns workflow persistence. Every workflow_id-addressed
// operation takes the requesting user so ownership cannot be skipped.
type WorkflowService interface {
	Create(ctx context.Context, ownerID uuid.UUID, input *CreateWorkflowInput) (*models.Workflow, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Workflow, error)
	ListTemplates(ctx context.Context) ([]models.Workflow, error)
	Get(ctx context.Context, workflowID, requesterID uuid.UUID) (*models.Workflow, error)
	// Update changes scalar fields only; the node list is not touched.
	Update(ctx context.Context, workflowID, requesterID uuid.UUID, input *UpdateWorkflowInput) (*models.Workflow, error)
	// Delete returns a not_found error for unknown ids.
	Delete(ctx context.Context, workflowID, requesterID uuid.UUID) error
	Duplicate(ctx context.Context, workflowID, newOwnerID uuid.UUID) (*models.Workflow, error)
}

type CreateWorkflowInput struct {
	Title       string
	Category    string
	Description string
	Nodes       []NodeInput
}

type NodeInput struct {
	Title       string
	Description string
}

type UpdateWorkflowInput struct {
	Title       *string
	Category    *string
	Description *string
}

type workflowService struct {
	workflows repository.WorkflowRepository
	cache     cache.SuggestionCache
}

func NewWorkflowService(workflows repository.WorkflowRepository, sc cache.SuggestionCache) WorkflowService {
	if sc == nil {
		sc = cache.Nop{}
	}
	return &workflowService{workflows: workflows, cache: sc}
}

var _ WorkflowService = (*workflowService)(nil)

func ensureNodes(w *models.Workflow) {
	if w.Nodes == nil {
		w.Nodes = []models.WorkflowNode{}
	}
}

func (s *workflowService) Create(ctx context.Context, ownerID uuid.UUID, input *CreateWorkflowInput) (*models.Workflow, error) {
	logger.L().Info("create workflow called", zap.String("user_id", ownerID.String()), zap.Int("nodes", len(input.Nodes)))

	owner := ownerID
	w := &models.Workflow{
		UserID:      &owner,
		Title:       input.Title,
		Category:    input.Category,
		Description: input.Description,
		Nodes:       make([]models.WorkflowNode, len(input.Nodes)),
	}
	for i, n := range input.Nodes {
		w.Nodes[i] = models.WorkflowNode{Title: n.Title, Description: n.Description}
	}

	if err := s.workflows.CreateWithNodes(ctx, w); err != nil {
		return nil, err
	}

	logger.L().Info("workflow created", zap.String("workflow_id", w.ID.String()), zap.String("user_id", ownerID.String()))
	return w, nil
}

func (s *workflowService) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Workflow, error) {
	logger.L().Info("list workflows", zap.String("user_id", ownerID.String()))
	out, err := s.workflows.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range out {
		ensureNodes(&out[i])
	}
	return out, nil
}

func (s *workflowService) ListTemplates(ctx context.Context) ([]models.Workflow, error) {
	out, err := s.workflows.ListPredefined(ctx)
	if err != nil {
		return nil, err
	}
	for i := range out {
		ensureNodes(&out[i])
	}
	return out, nil
}

// load fetches a workflow and applies the read rule: owners and, for
// predefined workflows, everyone.
func (s *workflowService) load(ctx context.Context, workflowID, requesterID uuid.UUID) (*models.Workflow, error) {
	var w models.Workflow
	if err := s.workflows.GetWithNodes(ctx, workflowID, &w); err != nil {
		return nil, err
	}
	if !w.IsPredefined && !w.OwnedBy(requesterID) {
		return nil, appErr.New(appErr.CodeForbidden, "user does not own workflow")
	}
	ensureNodes(&w)
	return &w, nil
}

// loadOwned applies the write rule: owners only.
func (s *workflowService) loadOwned(ctx context.Context, workflowID, requesterID uuid.UUID) (*models.Workflow, error) {
	w, err := s.load(ctx, workflowID, requesterID)
	if err != nil {
		return nil, err
	}
	if !w.OwnedBy(requesterID) {
		return nil, appErr.New(appErr.CodeForbidden, "predefined workflows are read-only")
	}
	return w, nil
}

func (s *workflowService) Get(ctx context.Context, workflowID, requesterID uuid.UUID) (*models.Workflow, error) {
	logger.L().Info("get workflow", zap.String("workflow_id", workflowID.String()), zap.String("user_id", requesterID.String()))
	return s.load(ctx, workflowID, requesterID)
}

func (s *workflowService) Update(ctx context.Context, workflowID, requesterID uuid.UUID, input *UpdateWorkflowInput) (*models.Workflow, error) {
	logger.L().Info("update workflow", zap.String("workflow_id", workflowID.String()), zap.String("user_id", requesterID.String()))
	w, err := s.loadOwned(ctx, workflowID, requesterID)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	if input.Title != nil {
		fields["title"] = *input.Title
		w.Title = *input.Title
	}
	if input.Category != nil {
		fields["category"] = *input.Category
		w.Category = *input.Category
	}
	if input.Description != nil {
		fields["description"] = *input.Description
		w.Description = *input.Description
	}

	if err := s.workflows.UpdateMeta(ctx, workflowID, fields); err != nil {
		return nil, err
	}

	logger.L().Info("workflow updated", zap.String("workflow_id", workflowID.String()), zap.Int("fields", len(fields)))
	return w, nil
}

func (s *workflowService) Delete(ctx context.Context, workflowID, requesterID uuid.UUID) error {
	logger.L().Info("delete workflow", zap.String("workflow_id", workflowID.String()), zap.String("user_id", requesterID.String()))
	if _, err := s.loadOwned(ctx, workflowID, requesterID); err != nil {
		return err
	}
	nodeIDs, err := s.workflows.DeleteCascade(ctx, workflowID)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, nodeIDs...)
	logger.L().Info("workflow deleted", zap.String("workflow_id", workflowID.String()), zap.Int("nodes_removed", len(nodeIDs)))
	return nil
}

func (s *workflowService) Duplicate(ctx context.Context, workflowID, newOwnerID uuid.UUID) (*models.Workflow, error) {
	logger.L().Info("duplicate workflow", zap.String("workflow_id", workflowID.String()), zap.String("user_id", newOwnerID.String()))
	src, err := s.load(ctx, workflowID, newOwnerID)
	if err != nil {
		return nil, err
	}

	owner := newOwnerID
	cp := &models.Workflow{
		UserID:       &owner,
		Title:        src.Title,
		Category:     src.Category,
		Description:  src.Description,
		IsPredefined: false,
		Nodes:        make([]models.WorkflowNode, len(src.Nodes)),
	}
	for i, n := range src.Nodes {
		cp.Nodes[i] = models.WorkflowNode{Title: n.Title, Description: n.Description}
	}

	if err := s.workflows.CreateWithNodes(ctx, cp); err != nil {
		return nil, err
	}
	logger.L().Info("workflow duplicated", zap.String("source_id", workflowID.String()), zap.String("workflow_id", cp.ID.String()))
	return cp, nil
}
