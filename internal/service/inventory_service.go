package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/meditrace/meditrace-api/internal/models"
	"github.com/meditrace/meditrace-api/pkg/config"
	appErrors "github.com/meditrace/meditrace-api/pkg/errors"
)

type inventoryReader interface {
	Available(ctx context.Context, productID, orgID, lotID string) (int, error)
	AvailableByLot(ctx context.Context, productID, orgID string) ([]models.LotAvailability, error)
}

type inventoryCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	IncCacheHit()
	IncCacheMiss()
}

// InventoryService serves the availability projection with a read-through
// cache. The database is always the source of truth; cached entries are
// dropped on every committing write that touches the product, so the TTL
// only bounds staleness if an invalidation is lost.
type InventoryService struct {
	repo    inventoryReader
	cache   inventoryCache
	metrics cacheMetrics
	ttl     time.Duration
	logger  *zap.Logger
}

// NewInventoryService constructs InventoryService.
func NewInventoryService(repo inventoryReader, cache inventoryCache, metrics cacheMetrics, cfg config.InventoryConfig, logger *zap.Logger) *InventoryService {
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryService{repo: repo, cache: cache, metrics: metrics, ttl: ttl, logger: logger}
}

// Available returns the count of IN_STOCK units of a product held by an
// organization, optionally narrowed to one lot.
func (s *InventoryService) Available(ctx context.Context, productID, orgID, lotID string) (int, error) {
	if productID == "" || orgID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "product and organization are required")
	}

	key := inventoryKey(productID, orgID, lotID)
	if s.cache != nil {
		var cached int
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.hit()
			return cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("inventory cache read failed", "key", key, "error", err)
		}
		s.miss()
	}

	count, err := s.repo.Available(ctx, productID, orgID, lotID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count availability")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, count, s.ttl); err != nil {
			s.logger.Sugar().Warnw("inventory cache write failed", "key", key, "error", err)
		}
	}
	return count, nil
}

// Summary returns the per-lot breakdown for one product and organization,
// in FIFO order.
func (s *InventoryService) Summary(ctx context.Context, productID, orgID string) (*models.InventorySummary, error) {
	if productID == "" || orgID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "product and organization are required")
	}

	key := inventoryKey(productID, orgID, "summary")
	if s.cache != nil {
		var cached models.InventorySummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.hit()
			return &cached, nil
		} else if !appErrors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Sugar().Warnw("inventory cache read failed", "key", key, "error", err)
		}
		s.miss()
	}

	lots, err := s.repo.AvailableByLot(ctx, productID, orgID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lot availability")
	}

	summary := &models.InventorySummary{
		ProductID:      productID,
		OrganizationID: orgID,
		Lots:           lots,
	}
	for _, lot := range lots {
		summary.Total += lot.Available
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary, s.ttl); err != nil {
			s.logger.Sugar().Warnw("inventory cache write failed", "key", key, "error", err)
		}
	}
	return summary, nil
}

// Invalidate drops every cached entry for the product under each affected
// organization. Called after ledger commits; failures are logged, never
// surfaced, since the TTL catches anything missed.
func (s *InventoryService) Invalidate(ctx context.Context, productID string, orgIDs ...string) {
	if s.cache == nil {
		return
	}
	for _, orgID := range orgIDs {
		pattern := fmt.Sprintf("inventory:%s:%s:*", productID, orgID)
		if err := s.cache.DeleteByPattern(ctx, pattern); err != nil {
			s.logger.Sugar().Warnw("inventory cache invalidation failed", "pattern", pattern, "error", err)
		}
	}
}

func (s *InventoryService) hit() {
	if s.metrics != nil {
		s.metrics.IncCacheHit()
	}
}

func (s *InventoryService) miss() {
	if s.metrics != nil {
		s.metrics.IncCacheMiss()
	}
}

func inventoryKey(productID, orgID, suffix string) string {
	if suffix == "" {
		suffix = "total"
	}
	return fmt.Sprintf("inventory:%s:%s:%s", productID, orgID, suffix)
}
