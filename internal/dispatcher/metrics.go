package dispatcher

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/planeboard/engine/internal/dispatcher"

// metrics holds the dispatcher instruments. They come from the global meter
// provider, which is a no-op until telemetry is configured.
type metrics struct {
	processed metric.Int64Counter
	dropped   metric.Int64Counter
	failed    metric.Int64Counter
	duration  metric.Float64Histogram
}

// newMetrics creates the instruments. depths reports the queued events per
// buffered command and backs the queue size gauge.
func newMetrics(depths func() map[string]int) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&out.processed, "dispatcher.events.processed", "Buffered events handled"},
		{&out.dropped, "dispatcher.events.dropped", "Events rejected by a full queue"},
		{&out.failed, "dispatcher.events.failed", "Events whose handler returned an error"},
	}
	for _, c := range counters {
		ctr, err := m.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", c.name, err)
		}
		*c.dst = ctr
	}

	var err error
	out.duration, err = m.Float64Histogram("dispatcher.event.duration",
		metric.WithDescription("Handler run time of logged commands"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	queueSize, err := m.Int64ObservableGauge("dispatcher.queue.size",
		metric.WithDescription("Events waiting in a command queue"))
	if err != nil {
		return nil, fmt.Errorf("creating queue size gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		for cmd, n := range depths() {
			o.ObserveInt64(queueSize, int64(n), commandAttr(cmd))
		}
		return nil
	}, queueSize)
	if err != nil {
		return nil, fmt.Errorf("registering queue callback: %w", err)
	}
	return out, nil
}

func commandAttr(command string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("command", command))
}

func (m *metrics) recordDuration(d time.Duration, attr metric.MeasurementOption) {
	m.duration.Record(context.Background(), float64(d.Microseconds())/1000, attr)
}
