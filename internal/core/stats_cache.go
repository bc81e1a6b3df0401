package core

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gonum.org/v1/gonum/stat"

	"nucleicore/pkg/domain"
)

type statKey struct {
	Stat      Measurement
	Component Component
	Scale     MeasurementScale
	SubID     uuid.UUID
}

func (k statKey) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", k.Component, k.Stat, k.Scale, k.SubID)
}

type statSummary struct {
	values []float64
	median float64
	min    float64
	max    float64
}

func summarise(values []float64) (statSummary, error) {
	if len(values) == 0 {
		return statSummary{}, fmt.Errorf("summarise statistic: %w", domain.ErrEmptyCollection)
	}
	sorted := slices.Clone(values)
	sort.Float64s(sorted)
	return statSummary{
		values: sorted,
		median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		min:    sorted[0],
		max:    sorted[len(sorted)-1],
	}, nil
}

// statsCache memoises sorted statistic arrays and their summaries. Concurrent
// misses on one key share a single computation. Clearing bumps a generation
// so computations started before the clear are not stored.
type statsCache struct {
	mu      sync.Mutex
	entries map[statKey]statSummary
	gen     uint64
	group   singleflight.Group
	metrics *Metrics
}

func newStatsCache(m *Metrics) *statsCache {
	return &statsCache{entries: make(map[statKey]statSummary), metrics: m}
}

func (c *statsCache) get(ctx context.Context, key statKey, compute func(context.Context) ([]float64, error)) (statSummary, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		c.metrics.cacheHit()
		return e, nil
	}
	gen := c.gen
	c.mu.Unlock()
	c.metrics.cacheMiss()

	v, err, _ := c.group.Do(fmt.Sprintf("%d|%s", gen, key), func() (any, error) {
		values, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		summary, err := summarise(values)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gen == gen {
			c.entries[key] = summary
		}
		c.mu.Unlock()
		return summary, nil
	})
	if err != nil {
		return statSummary{}, err
	}
	return v.(statSummary), nil
}

func (c *statsCache) clear() {
	c.mu.Lock()
	c.gen++
	clear(c.entries)
	c.mu.Unlock()
}

func (c *statsCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

type vennEntry struct {
	count        int
	selfVersion  uint64
	otherVersion uint64
}

// vennCache records shared-cell counts against other collections. An entry
// is valid only while both collections keep the membership versions it was
// computed at.
type vennCache struct {
	mu      sync.Mutex
	entries map[uuid.UUID]vennEntry
}

func (v *vennCache) lookup(other uuid.UUID, self, otherVersion uint64) (int, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.entries[other]
	if !ok || e.selfVersion != self || e.otherVersion != otherVersion {
		return 0, false
	}
	return e.count, true
}
