package metrics

import (
	"sync"
	"time"

	"media-cdn/internal/logging"
)

// StatsProvider reports gauges that are cheaper to sample than to track per event.
type StatsProvider interface {
	GetStats() Stats
}

// Stats holds the sampled values.
type Stats struct {
	LocalEntries   int
	LocalBytes     int64
	OriginMappings int
}

// Collector periodically samples a StatsProvider into gauges.
type Collector struct {
	statsProvider StatsProvider
	interval      time.Duration
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewCollector creates a new metrics collector
func NewCollector(provider StatsProvider, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection. It is safe to call more than once.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopChan) })
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	CacheLocalEntries.Set(float64(stats.LocalEntries))
	CacheLocalBytes.Set(float64(stats.LocalBytes))
	OriginMappings.Set(float64(stats.OriginMappings))

	logging.Debug("Metrics collected: local_entries=%d, local_bytes=%d, origin_mappings=%d",
		stats.LocalEntries, stats.LocalBytes, stats.OriginMappings)
}
