package cache

import (
	"context"
	"time"

	"ordem/internal/log"
)

// Cleaner is a cache that can drop its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Janitor periodically cleans the registered caches until its context ends.
type Janitor struct {
	caches   []Cleaner
	interval time.Duration
	logger   *log.Logger
}

func NewJanitor(interval time.Duration, logger *log.Logger, caches ...Cleaner) *Janitor {
	return &Janitor{caches: caches, interval: interval, logger: logger}
}

// Run blocks until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			removed := 0
			for _, c := range j.caches {
				removed += c.CleanExpired()
			}
			if removed > 0 && j.logger != nil {
				j.logger.Debug("Expired cache entries removed", "count", removed)
			}
		case <-ctx.Done():
			return
		}
	}
}
