package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"wequack/internal/domain"
	"wequack/internal/repository"
	"wequack/pkg/logger"
)

type UserService interface {
	GetMe(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error)
	ListUsers(ctx context.Context, exceptID uuid.UUID) ([]domain.UserSummary, error)
}

type userService struct {
	userRepo repository.UserRepository
	log      logger.Logger
}

func NewUserService(userRepo repository.UserRepository, log logger.Logger) UserService {
	return &userService{
		userRepo: userRepo,
		log:      log,
	}
}

func (s *userService) GetMe(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	return s.GetUser(ctx, userID)
}

func (s *userService) GetUser(ctx context.Context, userID uuid.UUID) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *userService) ListUsers(ctx context.Context, exceptID uuid.UUID) ([]domain.UserSummary, error) {
	users, err := s.userRepo.ListExcept(ctx, exceptID)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u *domain.User, _ int) domain.UserSummary {
		return u.Summary()
	}), nil
}
