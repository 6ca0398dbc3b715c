package perch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/grip/recovery"
	"github.com/pkg/errors"
)

const topN = 10
const statChanBufferSize = 1000
const statsLoggerInterval = time.Minute

// Stat represents a count to add to the cache for a particular
// metric/test-type/outcome combination.
type Stat struct {
	Count    int
	Metric   string
	TestType string
	Outcome  string
}

// StatsCache aggregates ingestion counts and periodically flushes them to
// the application log.
type StatsCache struct {
	mu        sync.Mutex
	cacheName string
	statChan  chan Stat

	calls      int
	total      int
	byMetric   map[string]int
	byTestType map[string]int
	byOutcome  map[string]int
}

func NewStatsCache(name string) *StatsCache {
	return &StatsCache{
		cacheName:  name,
		statChan:   make(chan Stat, statChanBufferSize),
		byMetric:   make(map[string]int),
		byTestType: make(map[string]int),
		byOutcome:  make(map[string]int),
	}
}

// Start launches the cache's consumer and logger loops. The loops exit when
// the given context is canceled.
func (s *StatsCache) Start(ctx context.Context) {
	go s.consumerLoop(ctx)
	go s.loggerLoop(ctx)
}

// AddStat records a single stat without blocking the caller. It returns an
// error when the cache's buffer is full.
func (s *StatsCache) AddStat(newStat Stat) error {
	select {
	case s.statChan <- newStat:
		return nil
	default:
		return errors.Errorf("%s stats cache is full", s.cacheName)
	}
}

func (s *StatsCache) resetCache() {
	s.calls = 0
	s.total = 0
	s.byMetric = make(map[string]int)
	s.byTestType = make(map[string]int)
	s.byOutcome = make(map[string]int)
}

func (s *StatsCache) cacheStat(newStat Stat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.total += newStat.Count
	s.byMetric[newStat.Metric] += newStat.Count
	s.byTestType[newStat.TestType] += newStat.Count
	s.byOutcome[newStat.Outcome] += newStat.Count
}

func (s *StatsCache) logStats() {
	s.mu.Lock()
	defer s.mu.Unlock()

	grip.InfoWhen(s.calls > 0, message.Fields{
		"message":      fmt.Sprintf("%s stats", s.cacheName),
		"calls":        s.calls,
		"total":        s.total,
		"by_metric":    topNItems(s.byMetric, topN),
		"by_test_type": topNItems(s.byTestType, topN),
		"by_outcome":   topNItems(s.byOutcome, topN),
	})

	s.resetCache()
}

func (s *StatsCache) consumerLoop(ctx context.Context) {
	defer func() {
		if err := recovery.HandlePanicWithError(recover(), nil, "stats cache consumer"); err != nil {
			grip.Error(message.WrapError(err, message.Fields{
				"message": "panic in stats cache consumer loop",
				"cache":   s.cacheName,
			}))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case nextStat := <-s.statChan:
			s.cacheStat(nextStat)
		}
	}
}

func (s *StatsCache) loggerLoop(ctx context.Context) {
	defer func() {
		if err := recovery.HandlePanicWithError(recover(), nil, "stats cache logger"); err != nil {
			grip.Error(message.WrapError(err, message.Fields{
				"message": "panic in stats cache logger loop",
				"cache":   s.cacheName,
			}))
		}
	}()

	timer := time.NewTimer(statsLoggerInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.logStats()
			timer.Reset(statsLoggerInterval)
		}
	}
}

type countItem struct {
	name  string
	count int
}

func topNItems(fullMap map[string]int, n int) map[string]int {
	items := make([]countItem, 0, len(fullMap))
	for name, count := range fullMap {
		items = append(items, countItem{name: name, count: count})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].count > items[j].count })

	if len(items) > n {
		items = items[:n]
	}

	topItems := make(map[string]int, len(items))
	for _, item := range items {
		topItems[item.name] = item.count
	}

	return topItems
}
