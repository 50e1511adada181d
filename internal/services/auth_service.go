package services

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/aitoolflow/engine/internal/auth"
	"github.com/aitoolflow/engine/internal/cache"
	"github.com/aitoolflow/engine/internal/models"
	"github.com/aitoolflow/engine/internal/repository"
	appErr "github.com/aitoolflow/engine/pkg/errors"
	"github.com/aitoolflow/engine/pkg/logger"
)

// ErrInvalidCredentials is returned for unknown emails and wrong passwords alike.
var ErrInvalidCredentials = appErr.New(appErr.CodeUnauthorized, "invalid credentials")

type AuthService interface {
	Register(ctx context.Context, input *RegisterInput) (string, *models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	Verify(token string) (uuid.UUID, error)
	DeleteAccount(ctx context.Context, userID uuid.UUID) error
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName *string
	LastName  *string
}

type authService struct {
	userRepo   repository.UserRepository
	tokens     *auth.TokenIssuer
	cache      cache.SuggestionCache
	bcryptCost int
	validate   *validator.Validate
	// dummyHash is compared on unknown emails so both login failures cost a bcrypt round.
	dummyHash  []byte
}

func NewAuthService(userRepo repository.UserRepository, tokens *auth.TokenIssuer, sc cache.SuggestionCache, bcryptCost int) AuthService {
	if sc == nil {
		sc = cache.Nop{}
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("toolflow-no-such-account"), bcryptCost)
	if err != nil {
		logger.L().Warn("dummy password hash unavailable", zap.Error(err))
	}
	return &authService{
		userRepo:   userRepo,
		tokens:     tokens,
		cache:      sc,
		bcryptCost: bcryptCost,
		validate:   validator.New(),
		dummyHash:  dummy,
	}
}

var _ AuthService = (*authService)(nil)

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *authService) Register(ctx context.Context, input *RegisterInput) (string, *models.User, error) {
	email := normalizeEmail(input.Email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", nil, appErr.New(appErr.CodeInvalid, "a valid email is required")
	}
	if input.Password == "" {
		return "", nil, appErr.New(appErr.CodeInvalid, "password is required")
	}

	ph, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return "", nil, appErr.Wrap(err, appErr.CodeInvalid, "password cannot be hashed")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(ph),
		FirstName:    input.FirstName,
		LastName:     input.LastName,
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		if appErr.IsCode(err, appErr.CodeConflict) {
			return "", nil, appErr.Wrap(err, appErr.CodeConflict, "email already registered")
		}
		return "", nil, err
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, err
	}
	logger.L().Info("user registered", zap.String("user_id", user.ID.String()))
	return token, user, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	var user models.User
	if err := s.userRepo.GetByEmail(ctx, normalizeEmail(email), &user); err != nil {
		if appErr.IsCode(err, appErr.CodeNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

func (s *authService) Verify(token string) (uuid.UUID, error) {
	return s.tokens.Verify(token)
}

func (s *authService) DeleteAccount(ctx context.Context, userID uuid.UUID) error {
	nodeIDs, err := s.userRepo.DeleteCascade(ctx, userID)
	if err != nil {
		return err
	}
	s.cache.Invalidate(ctx, nodeIDs...)
	logger.L().Info("account deleted", zap.String("user_id", userID.String()), zap.Int("nodes_removed", len(nodeIDs)))
	return nil
}
