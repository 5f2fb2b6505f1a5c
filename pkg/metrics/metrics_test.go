package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersFoldLabels(t *testing.T) {
	c := NewCollector()
	c.Inc("http_requests", map[string]string{"status": "200", "method": "GET"})
	c.Inc("http_requests", map[string]string{"method": "GET", "status": "200"})
	c.Inc("http_requests", nil)

	got := c.Counters()
	assert.Equal(t, int64(2), got["http_requests"]["method:GET,status:200"])
	assert.Equal(t, int64(1), got["http_requests"]["default"])
}

func TestLatencyWindow(t *testing.T) {
	c := NewCollector()
	for i := 0; i < latencyWindow; i++ {
		c.Observe("http", 10*time.Millisecond)
	}
	c.Observe("http", 110*time.Millisecond)

	got := c.Latencies()["http"]
	require.NotNil(t, got)
	assert.InDelta(t, 11.0, got["avg_ms"], 0.001)
	assert.InDelta(t, 110.0, got["max_ms"], 0.001)
}
