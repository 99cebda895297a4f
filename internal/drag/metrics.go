package drag

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/planeboard/engine/internal/drag"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

type metrics struct {
	started   metric.Int64Counter
	ended     metric.Int64Counter
	cancelled metric.Int64Counter
	batchSize metric.Int64Histogram
	moveTime  metric.Float64Histogram
}

func newMetrics() (*metrics, error) {
	m := meter()
	var (
		out metrics
		err error
	)

	out.started, err = m.Int64Counter(
		"drag.gestures.started",
		metric.WithDescription("Gestures started, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating started counter: %w", err)
	}

	out.ended, err = m.Int64Counter(
		"drag.gestures.ended",
		metric.WithDescription("Gestures committed, by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating ended counter: %w", err)
	}

	out.cancelled, err = m.Int64Counter(
		"drag.gestures.cancelled",
		metric.WithDescription("Gestures cancelled before commit"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating cancelled counter: %w", err)
	}

	out.batchSize, err = m.Int64Histogram(
		"drag.batch.size",
		metric.WithDescription("Updates per committed batch"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating batch size histogram: %w", err)
	}

	out.moveTime, err = m.Float64Histogram(
		"drag.move.duration",
		metric.WithDescription("Time spent correcting one pointer sample"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating move duration histogram: %w", err)
	}

	return &out, nil
}

func kindAttr(k Kind) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("kind", k.String()))
}

func (m *metrics) gestureStarted(k Kind) {
	m.started.Add(context.Background(), 1, kindAttr(k))
}

func (m *metrics) gestureEnded(k Kind, updates int) {
	m.ended.Add(context.Background(), 1, kindAttr(k))
	m.batchSize.Record(context.Background(), int64(updates), kindAttr(k))
}

func (m *metrics) gestureCancelled(k Kind) {
	m.cancelled.Add(context.Background(), 1, kindAttr(k))
}

func (m *metrics) moveComputed(k Kind, ms float64) {
	m.moveTime.Record(context.Background(), ms, kindAttr(k))
}
