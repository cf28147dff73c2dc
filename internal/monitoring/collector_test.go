package monitoring

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/store"
)

type stubStats struct {
	st  store.Stats
	err error
}

func (s stubStats) Stats(context.Context) (store.Stats, error) { return s.st, s.err }

func TestCollector_Collect(t *testing.T) {
	c := NewCollector(stubStats{st: store.Stats{
		Active:    5,
		Discarded: 7,
		ByStatus: map[model.Status]int{
			model.StatusQualified:        3,
			model.StatusMessageGenerated: 2,
			model.StatusDiscarded:        7,
		},
	}})

	st, err := c.Collect(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, st.Active)

	assert.Equal(t, 5.0, testutil.ToFloat64(StoreLeads.WithLabelValues("active")))
	assert.Equal(t, 7.0, testutil.ToFloat64(StoreLeads.WithLabelValues("discarded")))
	assert.Equal(t, 2.0, testutil.ToFloat64(StoreStatus.WithLabelValues("message_generated")))
	assert.Equal(t, 0.0, testutil.ToFloat64(StoreStatus.WithLabelValues("message_failed")))
}

func TestCollector_CollectError(t *testing.T) {
	c := NewCollector(stubStats{err: errors.New("down")})
	_, err := c.Collect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
}

func TestCollector_RunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		NewCollector(stubStats{}).Run(ctx, 0)
		close(done)
	}()
	<-done
}
