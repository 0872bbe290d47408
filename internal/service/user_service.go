package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/sql-academy-api/internal/dto"
	"github.com/noah-isme/sql-academy-api/internal/models"
	appErrors "github.com/noah-isme/sql-academy-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type xpSource interface {
	TotalXP(ctx context.Context, userID string) (int, error)
}

type snapshotSource interface {
	Snapshot(ctx context.Context, userID string) (*ProgressSnapshot, error)
}

// UserService serves user listings and the learner profile.
type UserService struct {
	repo        userRepository
	permissions permissionResolver
	xp          xpSource
	progress    snapshotSource
	logger      *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, permissions permissionResolver, xp xpSource, progress snapshotSource, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, permissions: permissions, xp: xp, progress: progress, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	if filter.Tier != "" && !filter.Tier.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid tier filter")
	}
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, newPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Internal(err, "failed to load user")
	}
	return user, nil
}

// Profile assembles the learner's account, plan, XP and achievements.
func (s *UserService) Profile(ctx context.Context, userID string) (*dto.ProfileResponse, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	var (
		perms    *models.ResolvedPermissions
		totalXP  int
		snapshot *ProgressSnapshot
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		perms, err = s.permissions.PermissionsFor(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		totalXP, err = s.xp.TotalXP(gctx, userID)
		return err
	})
	g.Go(func() (err error) {
		snapshot, err = s.progress.Snapshot(gctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		var appErr *appErrors.Error
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		return nil, appErrors.Internal(err, "failed to load profile")
	}

	return &dto.ProfileResponse{
		User:         toUserInfo(user),
		Permissions:  *perms,
		TotalXP:      totalXP,
		Stats:        snapshot.Stats,
		Achievements: snapshot.Achievements,
	}, nil
}
