package service

import (
	"context"

	"wequack/internal/config"
	"wequack/internal/repository"
	"wequack/pkg/logger"
)

type RateLimitService interface {
	// Allow counts a hit for key and reports whether it is within the limit
	// along with the hits left in the current window.
	Allow(ctx context.Context, key string) (bool, int, error)
	Limit() int
}

type rateLimitService struct {
	rateLimitRepo repository.RateLimitRepository
	cfg           config.RateLimitConfig
	log           logger.Logger
}

func NewRateLimitService(rateLimitRepo repository.RateLimitRepository, cfg config.RateLimitConfig, log logger.Logger) RateLimitService {
	return &rateLimitService{
		rateLimitRepo: rateLimitRepo,
		cfg:           cfg,
		log:           log,
	}
}

func (s *rateLimitService) Allow(ctx context.Context, key string) (bool, int, error) {
	count, err := s.rateLimitRepo.Increment(ctx, "ratelimit:"+key, s.cfg.Window)
	if err != nil {
		return false, 0, err
	}

	remaining := s.cfg.PerWindow - int(count)
	if remaining < 0 {
		return false, 0, nil
	}
	return true, remaining, nil
}

func (s *rateLimitService) Limit() int {
	return s.cfg.PerWindow
}
