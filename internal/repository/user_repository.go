package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aitoolflow/engine/internal/models"
	appErr "github.com/aitoolflow/engine/pkg/errors"
)

type UserRepository interface {
	BaseRepository[models.User]
	GetByEmail(ctx context.Context, email string, dest *models.User) error
	// DeleteCascade removes the user with every owned workflow, node and
	// suggestion row. It returns the ids of the removed nodes.
	DeleteCascade(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type userRepository struct {
	BaseRepository[models.User]
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{BaseRepository: NewBaseRepository[models.User](db, "user_id", "user"), db: db}
}

func (r *userRepository) GetByEmail(ctx context.Context, email string, dest *models.User) error {
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErr.New(appErr.CodeNotFound, "user not found")
		}
		return appErr.Wrap(err, appErr.CodeInternal, "get user by email failed")
	}
	return nil
}

func (r *userRepository) DeleteCascade(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var nodeIDs []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Locking first makes concurrent workflow creates for this user
		// either finish before the listing below or fail.
		if err := lockUser(tx, userID, "UPDATE"); err != nil {
			if errors.Is(err, ErrOwnerGone) {
				return appErr.New(appErr.CodeNotFound, "user not found")
			}
			return err
		}
		var workflowIDs []uuid.UUID
		if err := tx.Model(&models.Workflow{}).Where("user_id = ?", userID).Pluck("workflow_id", &workflowIDs).Error; err != nil {
			return appErr.Wrap(err, appErr.CodeInternal, "list owned workflows failed")
		}
		ids, err := deleteWorkflowRows(tx, workflowIDs)
		if err != nil {
			return err
		}
		nodeIDs = ids
		res := tx.Delete(&models.User{}, "user_id = ?", userID)
		if res.Error != nil {
			return appErr.Wrap(res.Error, appErr.CodeInternal, "delete user failed")
		}
		if res.RowsAffected == 0 {
			return appErr.New(appErr.CodeNotFound, "user not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nodeIDs, nil
}
