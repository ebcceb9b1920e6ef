package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"wequack/pkg/logger"
)

type Repositories struct {
	User      UserRepository
	Group     GroupRepository
	Message   MessageRepository
	RateLimit RateLimitRepository
}

// NewRepositories picks Postgres when db is set and the in-memory store
// otherwise; a nil redis client disables rate limiting.
func NewRepositories(db *pgxpool.Pool, redis *redis.Client, log logger.Logger) *Repositories {
	repos := &Repositories{}

	if db != nil {
		repos.User = NewUserRepository(db, log)
		repos.Group = NewGroupRepository(db, log)
		repos.Message = NewMessageRepository(db, log)
		log.Info("Postgres repositories initialized")
	} else {
		repos.User, repos.Group, repos.Message = NewMemoryRepositories()
		log.Warn("DATABASE_DSN is empty, using in-memory repositories")
	}

	if redis != nil {
		repos.RateLimit = NewRateLimitRepository(redis, log)
	} else {
		repos.RateLimit = NewNoopRateLimitRepository()
		log.Warn("REDIS_ADDR is empty, rate limiting disabled")
	}

	return repos
}
