package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Metric attribute keys. Frozen: dashboards depend on them.
const (
	attrMode    = "mode"
	attrReason  = "reason"
	attrNumPipe = "num_pipe"
)

var allowedDecisionAttributes = map[attribute.Key]bool{
	attrMode:    true,
	attrReason:  true,
	attrNumPipe: true,
}

// DecisionObserver emits scalability decisions as otel metrics and span
// attributes.
type DecisionObserver struct {
	decisions metric.Int64Counter
}

// NewDecisionObserver creates the instruments on the provider's meter.
func NewDecisionObserver(p *Provider) (*DecisionObserver, error) {
	meter := p.Meter("mediahal.scalability")
	c, err := meter.Int64Counter("mediahal_scalability_decision_total",
		metric.WithDescription("Scalability decisions by mode, reason and pipe count"))
	if err != nil {
		return nil, fmt.Errorf("create decision counter: %w", err)
	}
	return &DecisionObserver{decisions: c}, nil
}

// Emit records one decision. Attributes outside the frozen whitelist are
// rejected with an error instead of being exported.
func (o *DecisionObserver) Emit(ctx context.Context, mode, reason string, numPipe int, reused bool) error {
	if o == nil {
		return nil
	}
	attrs := []attribute.KeyValue{
		attribute.String(attrMode, mode),
		attribute.String(attrReason, reason),
		attribute.Int(attrNumPipe, numPipe),
	}
	for _, kv := range attrs {
		if !allowedDecisionAttributes[kv.Key] {
			return fmt.Errorf("attribute %q not in decision whitelist", kv.Key)
		}
	}
	if !reused {
		o.decisions.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	trace.SpanFromContext(ctx).SetAttributes(ScalabilityAttributes(mode, reason, numPipe, reused)...)
	return nil
}
