package app

import (
	"context"
	"sort"
	"time"

	"github.com/smatracka/hotdrop/internal/clock"
	"github.com/smatracka/hotdrop/internal/domain"
)

type DropReader interface {
	GetDrop(ctx context.Context, dropID string) (domain.Drop, error)
	ListProductsByDrop(ctx context.Context, dropID string) ([]domain.Product, error)
	ListWarmCandidates(ctx context.Context, now time.Time) ([]domain.Drop, error)
	ListSellerDrops(ctx context.Context, sellerID string, limit int) ([]domain.Drop, error)
}

type QueueReader interface {
	GetQueue(ctx context.Context, dropID string) (domain.QueueState, error)
}

// CacheStore is the TTL-capable cache the warmer populates and the read path
// consults.
type CacheStore interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// Warm priorities, most urgent first. Each maps to a cache TTL: the hotter
// the drop, the shorter the staleness window.
const (
	PriorityImminent  = 100 // starts within 5 minutes
	PriorityLive      = 90  // currently between start and end
	PriorityUpcoming  = 80  // starts within 24 hours
	PriorityPublished = 70  // everything else published
)

const (
	imminentWindow      = 5 * time.Minute
	upcomingWindow      = 24 * time.Hour
	maxQueueSnapshotTTL = 60 * time.Second
	maxSellerPageTTL    = 300 * time.Second
	sellerPageSize      = 20
)

// WarmTTLs maps priority bands to cache TTLs.
type WarmTTLs struct {
	Imminent  time.Duration
	Live      time.Duration
	Upcoming  time.Duration
	Published time.Duration
}

func DefaultWarmTTLs() WarmTTLs {
	return WarmTTLs{
		Imminent:  60 * time.Second,
		Live:      300 * time.Second,
		Upcoming:  1800 * time.Second,
		Published: 3600 * time.Second,
	}
}

// WarmService proactively populates the read cache for drops ranked by
// urgency, so the read path never stampedes the primary store during a spike.
type WarmService struct {
	drops  DropReader
	queues QueueReader
	cache  CacheStore
	clock  clock.Clock
	ttls   WarmTTLs
}

func NewWarmService(drops DropReader, queues QueueReader, cache CacheStore, clk clock.Clock, ttls WarmTTLs) *WarmService {
	return &WarmService{
		drops:  drops,
		queues: queues,
		cache:  cache,
		clock:  clk,
		ttls:   ttls,
	}
}

// Priority ranks a published drop by how soon shoppers will hit it.
func Priority(drop domain.Drop, now time.Time) int {
	if !now.Before(drop.StartsAt) && now.Before(drop.EndsAt) {
		return PriorityLive
	}
	if drop.StartsAt.After(now) {
		until := drop.StartsAt.Sub(now)
		if until <= imminentWindow {
			return PriorityImminent
		}
		if until <= upcomingWindow {
			return PriorityUpcoming
		}
	}
	return PriorityPublished
}

// TTLFor returns the cache TTL for a priority band.
func (s *WarmService) TTLFor(priority int) time.Duration {
	switch {
	case priority >= PriorityImminent:
		return s.ttls.Imminent
	case priority >= PriorityLive:
		return s.ttls.Live
	case priority >= PriorityUpcoming:
		return s.ttls.Upcoming
	default:
		return s.ttls.Published
	}
}

// Candidates returns the drop IDs due for warming, most urgent first. Only
// published drops that have not yet ended qualify.
func (s *WarmService) Candidates(ctx context.Context) ([]string, error) {
	now := s.clock.Now()
	drops, err := s.drops.ListWarmCandidates(ctx, now)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(drops, func(i, j int) bool {
		return Priority(drops[i], now) > Priority(drops[j], now)
	})

	ids := make([]string, 0, len(drops))
	for _, d := range drops {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// WarmDrop refreshes one drop's cached document, its queue snapshot (capped
// to 60s) and the seller's first page of drops (capped to 300s). Unpublished
// drops are skipped.
func (s *WarmService) WarmDrop(ctx context.Context, dropID string) error {
	drop, err := s.drops.GetDrop(ctx, dropID)
	if err != nil {
		return err
	}
	if drop.Status != domain.DropStatusPublished {
		return nil
	}

	ttl := s.TTLFor(Priority(drop, s.clock.Now()))
	if err := s.warmDropDocument(ctx, drop, ttl); err != nil {
		return err
	}
	return s.warmSellerPage(ctx, drop.SellerID, minDuration(ttl, maxSellerPageTTL))
}

// WarmSeller refreshes the seller's first page and each published drop on it,
// using the same priority/TTL logic as the scheduled cycle.
func (s *WarmService) WarmSeller(ctx context.Context, sellerID string) error {
	drops, err := s.drops.ListSellerDrops(ctx, sellerID, sellerPageSize)
	if err != nil {
		return err
	}
	if err := s.cache.SetJSON(ctx, SellerDropsCacheKey(sellerID), sellerPage{Drops: drops, WarmedAt: s.clock.Now()}, maxSellerPageTTL); err != nil {
		return err
	}

	for _, drop := range drops {
		if drop.Status != domain.DropStatusPublished {
			continue
		}
		ttl := s.TTLFor(Priority(drop, s.clock.Now()))
		if err := s.warmDropDocument(ctx, drop, ttl); err != nil {
			return err
		}
	}
	return nil
}

func (s *WarmService) warmDropDocument(ctx context.Context, drop domain.Drop, ttl time.Duration) error {
	products, err := s.drops.ListProductsByDrop(ctx, drop.ID)
	if err != nil {
		return err
	}
	doc := dropDocument{Drop: drop, Products: products, WarmedAt: s.clock.Now()}
	if err := s.cache.SetJSON(ctx, DropCacheKey(drop.ID), doc, ttl); err != nil {
		return err
	}
	return s.warmQueueSnapshot(ctx, drop.ID, minDuration(ttl, maxQueueSnapshotTTL))
}

func (s *WarmService) warmQueueSnapshot(ctx context.Context, dropID string, ttl time.Duration) error {
	state, err := s.queues.GetQueue(ctx, dropID)
	if err != nil {
		if err == domain.ErrQueueNotFound {
			return nil
		}
		return err
	}
	snap := QueueSnapshot{
		CurrentUsers:       len(state.ActiveUsers),
		MaxConcurrentUsers: state.MaxConcurrentUsers,
		Waiting:            len(state.WaitingQueue),
		UpdatedAt:          state.UpdatedAt,
	}
	return s.cache.SetJSON(ctx, DropQueueCacheKey(dropID), snap, ttl)
}

func (s *WarmService) warmSellerPage(ctx context.Context, sellerID string, ttl time.Duration) error {
	drops, err := s.drops.ListSellerDrops(ctx, sellerID, sellerPageSize)
	if err != nil {
		return err
	}
	return s.cache.SetJSON(ctx, SellerDropsCacheKey(sellerID), sellerPage{Drops: drops, WarmedAt: s.clock.Now()}, ttl)
}

func DropCacheKey(dropID string) string {
	return "drop:" + dropID
}

func DropQueueCacheKey(dropID string) string {
	return "drop:" + dropID + ":queue"
}

func SellerDropsCacheKey(sellerID string) string {
	return "seller:" + sellerID + ":drops"
}

type dropDocument struct {
	Drop     domain.Drop      `json:"drop"`
	Products []domain.Product `json:"products"`
	WarmedAt time.Time        `json:"warmed_at"`
}

// QueueSnapshot is the warmed public view of a queue, shared between the
// warmer and the read path. It carries counts only; user identifiers never
// enter the cache.
type QueueSnapshot struct {
	CurrentUsers       int       `json:"current_users"`
	MaxConcurrentUsers int       `json:"max_concurrent_users"`
	Waiting            int       `json:"waiting"`
	UpdatedAt          time.Time `json:"updated_at"`
}

type sellerPage struct {
	Drops    []domain.Drop `json:"drops"`
	WarmedAt time.Time     `json:"warmed_at"`
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
