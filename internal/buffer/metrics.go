package buffer

import (
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all the metric instruments for the buffer pool.
type Metrics struct {
	HitsCounter       metric.Int64Counter
	MissesCounter     metric.Int64Counter
	EvictionsCounter  metric.Int64Counter
	WriteBacksCounter metric.Int64Counter
	PinnedUpDownCount metric.Int64UpDownCounter
}

// NewMetrics creates and registers all the metrics for the buffer pool.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	hitsCounter, err := meter.Int64Counter(
		"novabuf.buffer.hits_total",
		metric.WithDescription("Total number of fetches served from a resident frame."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	missesCounter, err := meter.Int64Counter(
		"novabuf.buffer.misses_total",
		metric.WithDescription("Total number of fetches that had to load from storage."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	evictionsCounter, err := meter.Int64Counter(
		"novabuf.buffer.evictions_total",
		metric.WithDescription("Total number of frames reclaimed by the replacement policy."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	writeBacksCounter, err := meter.Int64Counter(
		"novabuf.buffer.write_backs_total",
		metric.WithDescription("Total number of page images written back to storage."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	pinnedUpDownCount, err := meter.Int64UpDownCounter(
		"novabuf.buffer.pinned_frames",
		metric.WithDescription("Number of frames currently pinned by callers."),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		HitsCounter:       hitsCounter,
		MissesCounter:     missesCounter,
		EvictionsCounter:  evictionsCounter,
		WriteBacksCounter: writeBacksCounter,
		PinnedUpDownCount: pinnedUpDownCount,
	}, nil
}
