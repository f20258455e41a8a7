package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/audiencelab/scrapewatch/internal/errors"
)

type recordedMetric struct {
	name string
	tags map[string]string
}

type fakeSink struct {
	counts  []recordedMetric
	gauges  []recordedMetric
	timings []recordedMetric
}

func (f *fakeSink) Count(name string, _ int64, tags map[string]string) {
	f.counts = append(f.counts, recordedMetric{name: name, tags: tags})
}

func (f *fakeSink) Gauge(name string, _ float64, tags map[string]string) {
	f.gauges = append(f.gauges, recordedMetric{name: name, tags: tags})
}

func (f *fakeSink) Timing(name string, _ time.Duration, tags map[string]string) {
	f.timings = append(f.timings, recordedMetric{name: name, tags: tags})
}

func (f *fakeSink) countNames() []string {
	names := make([]string, 0, len(f.counts))
	for _, m := range f.counts {
		names = append(names, m.name)
	}
	return names
}

func TestEmitTickLifecycleSuccess(t *testing.T) {
	sink := &fakeSink{}

	EmitTickLifecycle(sink, TickMetric{
		Result:      ResultSuccess,
		Duration:    125 * time.Millisecond,
		Checked:     10,
		Updated:     4,
		Completed:   2,
		Resurrected: 1,
		DataSaved:   150,
	})

	assert.Equal(t, []string{
		"monitor.tick",
		"monitor.runs.checked",
		"monitor.runs.updated",
		"monitor.runs.completed",
		"monitor.runs.resurrected",
		"monitor.members.saved",
	}, sink.countNames())

	require.Len(t, sink.gauges, 1)
	assert.Equal(t, "monitor.runs.backlog", sink.gauges[0].name)

	require.Len(t, sink.timings, 1)
	assert.Equal(t, "monitor.tick.duration", sink.timings[0].name)
	assert.Equal(t, "success", sink.timings[0].tags["result"])
}

func TestEmitTickLifecycleError(t *testing.T) {
	sink := &fakeSink{}

	EmitTickLifecycle(sink, TickMetric{
		Result: ResultError,
		Err:    apperrors.External("platform unavailable"),
	})

	// Per-run counters are only meaningful for completed ticks.
	assert.Equal(t, []string{"monitor.tick"}, sink.countNames())
	assert.Empty(t, sink.gauges)

	require.Len(t, sink.counts, 1)
	assert.Equal(t, "error", sink.counts[0].tags["result"])
	assert.NotEmpty(t, sink.counts[0].tags["error_class"])
}

func TestEmitTickLifecycleSkipped(t *testing.T) {
	sink := &fakeSink{}

	EmitTickLifecycle(sink, TickMetric{Result: ResultSkipped})

	assert.Equal(t, []string{"monitor.tick"}, sink.countNames())
	assert.Empty(t, sink.timings)
}

func TestEmitTickLifecycleNilSink(t *testing.T) {
	assert.NotPanics(t, func() {
		EmitTickLifecycle(nil, TickMetric{Result: ResultSuccess})
	})
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	assert.Nil(t, CloneTags(map[string]string{}))

	src := map[string]string{"result": "success", "": "dropped"}
	cloned := CloneTags(src)
	assert.Equal(t, map[string]string{"result": "success"}, cloned)

	cloned["result"] = "error"
	assert.Equal(t, "success", src["result"])
}
