package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/foxzi/listmail/internal/models"
)

// StatusCounter reports how many mailings are in each lifecycle state
type StatusCounter interface {
	StatusCounts() (map[models.MailingStatus]int, error)
}

// Collector periodically refreshes gauges that are derived from state
// rather than counted as events.
type Collector struct {
	metrics   *Metrics
	statuses  StatusCounter
	interval  time.Duration
	startTime time.Time
	logger    *slog.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewCollector creates a collector. statuses may be nil.
func NewCollector(m *Metrics, statuses StatusCounter, interval time.Duration, logger *slog.Logger) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		metrics:   m,
		statuses:  statuses,
		interval:  interval,
		startTime: time.Now(),
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

// Start refreshes the gauges once and then on every tick until ctx is done
// or Stop is called.
func (c *Collector) Start(ctx context.Context) {
	c.Collect()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.Collect()
			}
		}
	}()
}

// Stop waits for the refresh loop to exit
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

// Collect refreshes all derived gauges
func (c *Collector) Collect() {
	c.metrics.UptimeSeconds.Set(time.Since(c.startTime).Seconds())
	c.metrics.Goroutines.Set(float64(runtime.NumGoroutine()))

	if c.statuses == nil {
		return
	}
	counts, err := c.statuses.StatusCounts()
	if err != nil {
		c.logger.Warn("failed to count mailings by status", "error", err)
		return
	}
	for _, s := range []models.MailingStatus{models.MailingCreated, models.MailingStarted, models.MailingFinished} {
		c.metrics.Mailings.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
