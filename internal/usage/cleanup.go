package usage

import (
	"sync"
	"time"
)

// CleanupInterval is how often SQL stores delete entries past retention.
const CleanupInterval = 1 * time.Hour

// retention runs a store's purge immediately and then every
// CleanupInterval until stopped. A zero-day retention never runs.
type retention struct {
	days     int
	stopOnce sync.Once
	stopCh   chan struct{}
}

func newRetention(days int, purge func(cutoff time.Time)) *retention {
	r := &retention{days: days, stopCh: make(chan struct{})}
	if days > 0 {
		go r.loop(purge)
	}
	return r
}

func (r *retention) loop(purge func(cutoff time.Time)) {
	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		purge(r.cutoff(time.Now()))
		select {
		case <-ticker.C:
		case <-r.stopCh:
			return
		}
	}
}

// cutoff returns the oldest timestamp kept at now.
func (r *retention) cutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -r.days).UTC()
}

func (r *retention) stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
}
