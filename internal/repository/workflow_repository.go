package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aitoolflow/engine/internal/models"
	appErr "github.com/aitoolflow/engine/pkg/errors"
)

type WorkflowRepository interface {
	BaseRepository[models.Workflow]
	// CreateWithNodes inserts the workflow and its nodes in one transaction.
	// An owned workflow whose user no longer exists is rejected as unauthorized.
	CreateWithNodes(ctx context.Context, w *models.Workflow) error
	GetWithNodes(ctx context.Context, workflowID uuid.UUID, dest *models.Workflow) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Workflow, error)
	ListPredefined(ctx context.Context) ([]models.Workflow, error)
	UpdateMeta(ctx context.Context, workflowID uuid.UUID, fields map[string]any) error
	// DeleteCascade removes the workflow, its nodes and their suggestion rows,
	// returning the removed node ids.
	DeleteCascade(ctx context.Context, workflowID uuid.UUID) ([]uuid.UUID, error)
	HasNode(ctx context.Context, workflowID, nodeID uuid.UUID) (bool, error)
	// UpsertPredefined writes a template with caller-chosen ids, replacing its
	// fields and nodes when it already exists.
	UpsertPredefined(ctx context.Context, w *models.Workflow) error
}

type workflowRepository struct {
	BaseRepository[models.Workflow]
	db *gorm.DB
}

func NewWorkflowRepository(db *gorm.DB) WorkflowRepository {
	return &workflowRepository{BaseRepository: NewBaseRepository[models.Workflow](db, "workflow_id", "workflow"), db: db}
}

func orderedNodes(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *workflowRepository) CreateWithNodes(ctx context.Context, w *models.Workflow) error {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return appErr.Wrap(tx.Error, appErr.CodeInternal, "begin transaction failed")
	}

	if w.UserID != nil {
		if err := lockUser(tx, *w.UserID, "SHARE"); err != nil {
			tx.Rollback()
			return err
		}
	}

	if err := tx.Omit("Nodes").Create(w).Error; err != nil {
		tx.Rollback()
		return appErr.Wrap(err, appErr.CodeInternal, "create workflow failed")
	}

	for i := range w.Nodes {
		w.Nodes[i].WorkflowID = w.ID
		w.Nodes[i].Position = i
		if w.Nodes[i].CreatedAt.IsZero() {
			w.Nodes[i].CreatedAt = w.CreatedAt
		}
	}
	if len(w.Nodes) > 0 {
		if err := tx.Create(&w.Nodes).Error; err != nil {
			tx.Rollback()
			return appErr.Wrap(err, appErr.CodeInternal, "create workflow nodes failed")
		}
	}

	if err := tx.Commit().Error; err != nil {
		return appErr.Wrap(err, appErr.CodeInternal, "commit transaction failed")
	}
	return nil
}

func (r *workflowRepository) GetWithNodes(ctx context.Context, workflowID uuid.UUID, dest *models.Workflow) error {
	err := r.db.WithContext(ctx).Preload("Nodes", orderedNodes).First(dest, "workflow_id = ?", workflowID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "workflow not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get workflow failed")
	}
	return nil
}

func (r *workflowRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Workflow, error) {
	out := []models.Workflow{}
	err := r.db.WithContext(ctx).Preload("Nodes", orderedNodes).
		Where("user_id = ?", ownerID).
		Order("created_at DESC").Order("workflow_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list workflows by owner failed")
	}
	return out, nil
}

func (r *workflowRepository) ListPredefined(ctx context.Context) ([]models.Workflow, error) {
	out := []models.Workflow{}
	err := r.db.WithContext(ctx).Preload("Nodes", orderedNodes).
		Where("is_predefined = ?", true).
		Order("title ASC").Order("workflow_id ASC").
		Find(&out).Error
	if err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list predefined workflows failed")
	}
	return out, nil
}

func (r *workflowRepository) UpdateMeta(ctx context.Context, workflowID uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	res := r.db.WithContext(ctx).Model(&models.Workflow{}).Where("workflow_id = ?", workflowID).Updates(fields)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "update workflow failed")
	}
	if res.RowsAffected == 0 {
		return appErr.New(appErr.CodeNotFound, "workflow not found")
	}
	return nil
}

func (r *workflowRepository) DeleteCascade(ctx context.Context, workflowID uuid.UUID) ([]uuid.UUID, error) {
	var nodeIDs []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.Workflow{}).Where("workflow_id = ?", workflowID).Count(&count).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "lookup workflow failed")
		}
		if count == 0 {
			return appErr.New(appErr.CodeNotFound, "workflow not found")
		}
		ids, err := deleteWorkflowRows(tx, []uuid.UUID{workflowID})
		nodeIDs = ids
		return err
	})
	if err != nil {
		return nil, err
	}
	return nodeIDs, nil
}

func (r *workflowRepository) HasNode(ctx context.Context, workflowID, nodeID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WorkflowNode{}).
		Where("workflow_id = ? AND node_id = ?", workflowID, nodeID).
		Count(&count).Error
	if err != nil {
		return false, appErr.Wrap(err, appErr.CodeInternal, "lookup workflow node failed")
	}
	return count > 0, nil
}

func (r *workflowRepository) UpsertPredefined(ctx context.Context, w *models.Workflow) error {
	w.IsPredefined = true
	w.UserID = nil
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Omit("Nodes").Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "workflow_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "category", "description", "is_predefined", "updated_at"}),
		}).Create(w).Error
		if err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "upsert predefined workflow failed")
		}

		keep := make([]uuid.UUID, 0, len(w.Nodes))
		for i := range w.Nodes {
			w.Nodes[i].WorkflowID = w.ID
			w.Nodes[i].Position = i
			keep = append(keep, w.Nodes[i].ID)
		}
		q := tx.Model(&models.WorkflowNode{}).Where("workflow_id = ?", w.ID)
		if len(keep) > 0 {
			q = q.Where("node_id NOT IN ?", keep)
		}
		var stale []uuid.UUID
		if err := q.Pluck("node_id", &stale).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "list template nodes failed")
		}
		if len(stale) > 0 {
			if err := tx.Where("node_id IN ?", stale).Delete(&models.NodeSuggestion{}).Error; err != nil {
				return appErr.Wrap(err, appErr.CodeInternal, "prune template suggestions failed")
			}
			if err := tx.Where("node_id IN ?", stale).Delete(&models.WorkflowNode{}).Error; err != nil {
				return appErr.Wrap(err, appErr.CodeInternal, "prune template nodes failed")
			}
		}
		if len(w.Nodes) == 0 {
			return nil
		}
		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "node_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"position", "title", "description"}),
		}).Create(&w.Nodes).Error
		if err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "upsert template nodes failed")
		}
		return nil
	})
}

// ErrOwnerGone is returned when a workflow is written for a deleted account.
var ErrOwnerGone = appErr.New(appErr.CodeUnauthorized, "account no longer exists")

// lockUser checks that the user row exists. On postgres the row is locked with
// the given strength until tx ends; sqlite serialises writers already.
func lockUser(tx *gorm.DB, userID uuid.UUID, strength string) error {
	q := tx.Model(&models.User{}).Select("user_id").Where("user_id = ?", userID).Limit(1)
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: strength})
	}
	var u models.User
	res := q.Find(&u)
	if res.Error != nil {
		return appErr.Wrap(res.Error, appErr.CodeInternal, "lookup user failed")
	}
	if res.RowsAffected == 0 {
		return ErrOwnerGone
	}
	return nil
}

// deleteWorkflowRows removes suggestion rows, nodes and workflows in that order
// inside tx. It returns the removed node ids.
func deleteWorkflowRows(tx *gorm.DB, workflowIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(workflowIDs) == 0 {
		return nil, nil
	}
	var nodeIDs []uuid.UUID
	if err := tx.Model(&models.WorkflowNode{}).Where("workflow_id IN ?", workflowIDs).Pluck("node_id", &nodeIDs).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "list workflow nodes failed")
	}
	if len(nodeIDs) > 0 {
		if err := tx.Where("node_id IN ?", nodeIDs).Delete(&models.NodeSuggestion{}).Error; err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "delete node suggestions failed")
		}
		if err := tx.Where("workflow_id IN ?", workflowIDs).Delete(&models.WorkflowNode{}).Error; err != nil {
			return nil, appErr.Wrap(err, appErr.CodeInternal, "delete workflow nodes failed")
		}
	}
	if err := tx.Where("workflow_id IN ?", workflowIDs).Delete(&models.Workflow{}).Error; err != nil {
		return nil, appErr.Wrap(err, appErr.CodeInternal, "delete workflows failed")
	}
	return nodeIDs, nil
}
