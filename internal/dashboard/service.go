// Package dashboard builds the cached read models behind the dashboard and
// product detail pages.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/Bacorsx/EcoEnergy-IC/internal/cache"
	"github.com/Bacorsx/EcoEnergy-IC/internal/metrics"
	"github.com/Bacorsx/EcoEnergy-IC/internal/storage"
)

const (
	summaryKey       = "dashboard:summary"
	productKeyPrefix = "dashboard:product:"

	weekWindow         = 7 * 24 * time.Hour
	recentEventsLimit  = 6
	latestReadingLimit = 10
	productEventsLimit = 10
	productReadLimit   = 20
)

type Reader interface {
	SeverityCounts(ctx context.Context, since time.Time) ([]storage.SeverityCount, error)
	ListEvents(ctx context.Context, filter storage.EventFilter) ([]storage.EventView, error)
	CountEvents(ctx context.Context, filter storage.EventFilter) (int, error)
	ListMeasurements(ctx context.Context, productID string, limit int) ([]storage.Measurement, error)
	GetProduct(ctx context.Context, id string) (storage.Product, error)
}

type Summary struct {
	WeeklyBySeverity   []storage.SeverityCount `json:"weeklyBySeverity"`
	RecentEvents       []storage.EventView     `json:"recentEvents"`
	LatestMeasurements []storage.Measurement   `json:"latestMeasurements"`
	GeneratedAt        time.Time               `json:"generatedAt"`
}

type ProductDetail struct {
	Product      storage.Product       `json:"product"`
	Events       []storage.EventView   `json:"events"`
	ActiveAlerts int                   `json:"activeAlerts"`
	Measurements []storage.Measurement `json:"measurements"`
}

type Service struct {
	reader Reader
	cache  cache.Cache
	ttl    time.Duration
	now    func() time.Time
	logger zerolog.Logger
}

func NewService(reader Reader, c cache.Cache, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{reader: reader, cache: c, ttl: ttl, now: time.Now, logger: logger}
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	if s.lookup(ctx, summaryKey, &out) {
		return out, nil
	}
	now := s.now().UTC()
	counts, err := s.reader.SeverityCounts(ctx, now.Add(-weekWindow))
	if err != nil {
		return Summary{}, fmt.Errorf("severity counts: %w", err)
	}
	events, err := s.reader.ListEvents(ctx, storage.EventFilter{Limit: recentEventsLimit})
	if err != nil {
		return Summary{}, fmt.Errorf("recent events: %w", err)
	}
	latest, err := s.reader.ListMeasurements(ctx, "", latestReadingLimit)
	if err != nil {
		return Summary{}, fmt.Errorf("latest measurements: %w", err)
	}
	out = Summary{WeeklyBySeverity: counts, RecentEvents: events, LatestMeasurements: latest, GeneratedAt: now}
	s.store(ctx, summaryKey, out)
	return out, nil
}

func (s *Service) ProductDetail(ctx context.Context, productID string) (ProductDetail, error) {
	key := productKeyPrefix + productID
	var out ProductDetail
	if s.lookup(ctx, key, &out) {
		return out, nil
	}
	product, err := s.reader.GetProduct(ctx, productID)
	if err != nil {
		return ProductDetail{}, err
	}
	events, err := s.reader.ListEvents(ctx, storage.EventFilter{ProductID: productID, Limit: productEventsLimit})
	if err != nil {
		return ProductDetail{}, fmt.Errorf("product events: %w", err)
	}
	unresolved := false
	active, err := s.reader.CountEvents(ctx, storage.EventFilter{ProductID: productID, Resolved: &unresolved})
	if err != nil {
		return ProductDetail{}, err
	}
	readings, err := s.reader.ListMeasurements(ctx, productID, productReadLimit)
	if err != nil {
		return ProductDetail{}, fmt.Errorf("product measurements: %w", err)
	}
	out = ProductDetail{Product: product, Events: events, ActiveAlerts: active, Measurements: readings}
	s.store(ctx, key, out)
	return out, nil
}

// Invalidate drops the summary and, when productID is set, that product's
// detail.
func (s *Service) Invalidate(ctx context.Context, productID string) error {
	if s.cache == nil {
		return nil
	}
	keys := []string{summaryKey}
	if productID != "" {
		keys = append(keys, productKeyPrefix+productID)
	}
	return s.cache.Delete(ctx, keys...)
}

func (s *Service) lookup(ctx context.Context, key string, dest any) bool {
	if s.cache == nil {
		return false
	}
	err := s.cache.Get(ctx, key, dest)
	switch {
	case err == nil:
		metrics.CacheLookups.WithLabelValues(s.cache.Name(), "hit").Inc()
		return true
	case errors.Is(err, cache.ErrMiss):
		metrics.CacheLookups.WithLabelValues(s.cache.Name(), "miss").Inc()
	default:
		metrics.CacheLookups.WithLabelValues(s.cache.Name(), "error").Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("cache read failed")
	}
	return false
}

func (s *Service) store(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.ttl); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
