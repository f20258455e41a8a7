package metrics

import (
	"time"

	obserrors "github.com/audiencelab/scrapewatch/internal/observability/errors"
	"github.com/audiencelab/scrapewatch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
	ResultSkipped = "skipped"
)

// TickMetric captures details about one monitor tick for metric emission.
type TickMetric struct {
	Result      string
	Duration    time.Duration
	Checked     int
	Updated     int
	Completed   int
	Resurrected int
	DataSaved   int
	Err         error
}

// EmitTickLifecycle emits standardised monitor tick metrics.
func EmitTickLifecycle(sink statsd.Sink, in TickMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"result": in.Result,
	}

	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("monitor.tick", 1, tags)

	if in.Duration > 0 {
		sink.Timing("monitor.tick.duration", in.Duration, CloneTags(tags))
	}

	if in.Result != ResultSuccess {
		return
	}

	// The checked count doubles as the current attention-backlog level.
	sink.Gauge("monitor.runs.backlog", float64(in.Checked), nil)

	sink.Count("monitor.runs.checked", int64(in.Checked), nil)
	sink.Count("monitor.runs.updated", int64(in.Updated), nil)
	sink.Count("monitor.runs.completed", int64(in.Completed), nil)
	sink.Count("monitor.runs.resurrected", int64(in.Resurrected), nil)
	sink.Count("monitor.members.saved", int64(in.DataSaved), nil)
}

// CloneTags creates a shallow copy of a tag map, filtering out empty keys.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		if k == "" {
			continue
		}
		out[k] = v
	}
	return out
}
