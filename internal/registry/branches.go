package registry

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/branch-queue/internal/domain"
	"github.com/spec-kit/branch-queue/internal/repository"
)

const branchCacheKeyPrefix = "branch-queue:branch:"

// BranchRegistry reads branches through a Redis cache-aside layer. A nil
// client disables caching; cache failures fall back to the repository.
type BranchRegistry struct {
	repo   repository.BranchRepository
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewBranchRegistry builds the registry.
func NewBranchRegistry(repo repository.BranchRepository, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *BranchRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchRegistry{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

type cachedBranch struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`
	Active   bool   `json:"active"`
}

// Get returns the branch with id or a NotFound error.
func (r *BranchRegistry) Get(ctx context.Context, id string) (*domain.Branch, error) {
	if branch, ok := r.fromCache(ctx, id); ok {
		return branch, nil
	}
	branch, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.store(ctx, branch)
	return branch, nil
}

// Invalidate drops id from the cache.
func (r *BranchRegistry) Invalidate(ctx context.Context, id string) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Del(ctx, branchCacheKeyPrefix+id).Err(); err != nil {
		r.logger.Warn("branch cache invalidate failed", zap.String("branch_id", id), zap.Error(err))
	}
}

func (r *BranchRegistry) fromCache(ctx context.Context, id string) (*domain.Branch, bool) {
	if r.cache == nil {
		return nil, false
	}
	raw, err := r.cache.Get(ctx, branchCacheKeyPrefix+id).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("branch cache read failed", zap.String("branch_id", id), zap.Error(err))
		}
		return nil, false
	}
	var cached cachedBranch
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, false
	}
	return &domain.Branch{ID: cached.ID, Name: cached.Name, Timezone: cached.Timezone, Active: cached.Active}, true
}

func (r *BranchRegistry) store(ctx context.Context, branch *domain.Branch) {
	if r.cache == nil || r.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(cachedBranch{ID: branch.ID, Name: branch.Name, Timezone: branch.Timezone, Active: branch.Active})
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, branchCacheKeyPrefix+branch.ID, raw, r.ttl).Err(); err != nil {
		r.logger.Warn("branch cache write failed", zap.String("branch_id", branch.ID), zap.Error(err))
	}
}
