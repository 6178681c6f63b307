package model

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/couchcryptid/pump-status-service/internal/inference"
	"github.com/couchcryptid/pump-status-service/internal/observability"
)

// CachedClassifier wraps a Classifier with an in-memory LRU cache keyed by the
// aligned feature row. Only rows missing from the cache reach the inner
// classifier, and only valid probability rows are stored.
type CachedClassifier struct {
	inner   inference.Classifier
	cache   *lruCache
	metrics *observability.Metrics
}

// NewCachedClassifier creates a cache decorator around a classifier.
func NewCachedClassifier(inner inference.Classifier, maxEntries int, metrics *observability.Metrics) *CachedClassifier {
	return &CachedClassifier{
		inner:   inner,
		cache:   newLRUCache(maxEntries),
		metrics: metrics,
	}
}

func (c *CachedClassifier) PredictProbabilities(ctx context.Context, matrix [][]float64) ([][]float64, error) {
	out := make([][]float64, len(matrix))
	keys := make([]string, len(matrix))

	var (
		missRows [][]float64
		missAt   []int
	)
	for i, row := range matrix {
		keys[i] = rowKey(row)
		if probs, ok := c.cache.get(keys[i]); ok {
			out[i] = probs
			c.metrics.ClassifierCache.WithLabelValues("hit").Inc()
			continue
		}
		c.metrics.ClassifierCache.WithLabelValues("miss").Inc()
		missRows = append(missRows, row)
		missAt = append(missAt, i)
	}
	if len(missRows) == 0 {
		return out, nil
	}

	probs, err := c.inner.PredictProbabilities(ctx, missRows)
	if err != nil {
		return nil, err
	}
	// A short answer is passed through for the predictor to reject.
	if len(probs) != len(missRows) {
		return probs, nil
	}
	for j, i := range missAt {
		out[i] = probs[j]
		// Malformed rows are left for the predictor to reject.
		if inference.CheckProbabilities(probs[j]) == nil {
			c.cache.put(keys[i], probs[j])
		}
	}
	return out, nil
}

// CheckHealth delegates to the inner classifier when it has a health check.
func (c *CachedClassifier) CheckHealth(ctx context.Context) error {
	if hc, ok := c.inner.(inference.HealthChecker); ok {
		return hc.CheckHealth(ctx)
	}
	return nil
}

func rowKey(row []float64) string {
	var b strings.Builder
	for i, v := range row {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return b.String()
}

// lruCache is a simple thread-safe LRU cache of probability rows.
type lruCache struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []float64
	prev  *entry
	next  *entry
}

func newLRUCache(maxEntries int) *lruCache {
	return &lruCache{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (c *lruCache) get(key string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	c.moveToFront(e)
	return slices.Clone(e.value), true
}

func (c *lruCache) put(key string, value []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	value = slices.Clone(value)
	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if len(c.entries) > c.maxEntries {
		c.evictTail()
	}
}

func (c *lruCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *lruCache) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *lruCache) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *lruCache) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
