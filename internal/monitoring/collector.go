package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/store"
)

// StatsSource is the store view the collector reads.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Collector snapshots store sizes into the StoreLeads and StoreStatus gauges.
type Collector struct {
	src StatsSource
}

// NewCollector creates a Collector over src.
func NewCollector(src StatsSource) *Collector {
	return &Collector{src: src}
}

// Collect takes one snapshot.
func (c *Collector) Collect(ctx context.Context) (store.Stats, error) {
	st, err := c.src.Stats(ctx)
	if err != nil {
		return store.Stats{}, eris.Wrap(err, "monitoring: collect stats")
	}

	StoreLeads.WithLabelValues(string(store.Active)).Set(float64(st.Active))
	StoreLeads.WithLabelValues(string(store.Discarded)).Set(float64(st.Discarded))
	for _, s := range []model.Status{
		model.StatusNew, model.StatusQualified, model.StatusDiscarded,
		model.StatusMessageGenerated, model.StatusMessageFailed,
	} {
		StoreStatus.WithLabelValues(string(s)).Set(float64(st.ByStatus[s]))
	}
	return st, nil
}

// Run collects every interval until ctx is cancelled. Failures are logged
// and the loop continues.
func (c *Collector) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := c.Collect(ctx); err != nil && ctx.Err() == nil {
			zap.L().Warn("monitoring: store snapshot failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
