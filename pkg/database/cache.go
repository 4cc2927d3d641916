package database

import (
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/arnavshah/slot-assignment-api/pkg/models"
	"github.com/arnavshah/slot-assignment-api/pkg/scheduler"
)

// CachingRepository serves the actor directory from an in-memory snapshot.
// Slots and assignments always go to the underlying store.
type CachingRepository struct {
	scheduler.Repository
	store *cache.Cache
}

var (
	_ scheduler.Repository       = (*CachingRepository)(nil)
	_ scheduler.ApprovalRecorder = (*CachingRepository)(nil)
)

// NewCachingRepository caches FetchEligibleActors results of next for ttl.
func NewCachingRepository(next scheduler.Repository, ttl time.Duration) *CachingRepository {
	return &CachingRepository{
		Repository: next,
		store:      cache.New(ttl, 2*ttl),
	}
}

// FetchEligibleActors returns a copy of the cached pool of locationID.
func (c *CachingRepository) FetchEligibleActors(ctx context.Context, locationID string) ([]models.Actor, error) {
	if cached, found := c.store.Get(locationID); found {
		return slices.Clone(cached.([]models.Actor)), nil
	}
	actors, err := c.Repository.FetchEligibleActors(ctx, locationID)
	if err != nil {
		return nil, err
	}
	c.store.SetDefault(locationID, slices.Clone(actors))
	return actors, nil
}

// RecordApprovals forwards to the underlying store when it records approvals.
func (c *CachingRepository) RecordApprovals(ctx context.Context, result scheduler.ApprovalResult) error {
	if rec, ok := c.Repository.(scheduler.ApprovalRecorder); ok {
		return rec.RecordApprovals(ctx, result)
	}
	return nil
}

// Invalidate drops the cached pool of locationID, or every pool when locationID is empty.
func (c *CachingRepository) Invalidate(locationID string) {
	if locationID == "" {
		c.store.Flush()
		return
	}
	c.store.Delete(locationID)
}
