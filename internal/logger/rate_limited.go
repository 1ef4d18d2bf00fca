package logger

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited throttles log lines per category so a hot path (an eviction
// storm, a producer sending out of order) cannot flood the output. Lines
// dropped while a category is throttled are counted and reported on the next
// line that gets through.
type RateLimited struct {
	base  Logger
	every time.Duration
	burst int

	mu         sync.Mutex
	categories map[string]*category
}

type category struct {
	limiter    *rate.Limiter
	suppressed uint64
	total      uint64
}

// NewRateLimited allows burst lines per category, then one line every interval.
func NewRateLimited(base Logger, every time.Duration, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{
		base:       base,
		every:      every,
		burst:      burst,
		categories: make(map[string]*category),
	}
}

func (r *RateLimited) allow(name string) (bool, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.categories[name]
	if !ok {
		c = &category{limiter: rate.NewLimiter(rate.Every(r.every), r.burst)}
		r.categories[name] = c
	}
	c.total++

	if !c.limiter.Allow() {
		c.suppressed++
		return false, 0
	}

	dropped := c.suppressed
	c.suppressed = 0
	return true, dropped
}

func (r *RateLimited) entry(name string, fields map[string]interface{}) (Logger, bool) {
	ok, dropped := r.allow(name)
	if !ok {
		return nil, false
	}
	l := r.base.WithField("category", name)
	if len(fields) > 0 {
		l = l.WithFields(fields)
	}
	if dropped > 0 {
		l = l.WithField("suppressed", dropped)
	}
	return l, true
}

func (r *RateLimited) Warn(name string, fields map[string]interface{}, msg string) {
	if l, ok := r.entry(name, fields); ok {
		l.Warn(msg)
	}
}

func (r *RateLimited) Error(name string, fields map[string]interface{}, msg string) {
	if l, ok := r.entry(name, fields); ok {
		l.Error(msg)
	}
}

func (r *RateLimited) Debug(name string, fields map[string]interface{}, msg string) {
	if l, ok := r.entry(name, fields); ok {
		l.Debug(msg)
	}
}

// Suppressed returns the number of lines currently held back for a category.
func (r *RateLimited) Suppressed(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.categories[name]; ok {
		return c.suppressed
	}
	return 0
}

// Total returns how many lines were offered for a category.
func (r *RateLimited) Total(name string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.categories[name]; ok {
		return c.total
	}
	return 0
}
