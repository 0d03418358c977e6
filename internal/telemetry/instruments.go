package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Instruments holds the lifecycle counters recorded by the manager.
type Instruments struct {
	Created    metric.Int64Counter
	Superseded metric.Int64Counter // future siblings hard-deleted by a create
	Closed     metric.Int64Counter // current siblings ended by a create
	SoftEnded  metric.Int64Counter // delete requests resolved as soft ends
	Deleted    metric.Int64Counter // delete requests resolved as hard deletes
	Rejected   metric.Int64Counter // requests refused with a lifecycle error
}

// NewInstruments registers the lifecycle counters on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	var (
		ins Instruments
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&ins.Created, "temporal.records.created", "Records created"},
		{&ins.Superseded, "temporal.records.superseded", "Scheduled siblings removed by a newer record"},
		{&ins.Closed, "temporal.records.closed", "Current siblings closed by a newer record"},
		{&ins.SoftEnded, "temporal.records.soft_ended", "Delete requests resolved by ending the record"},
		{&ins.Deleted, "temporal.records.deleted", "Delete requests resolved by removing the record"},
		{&ins.Rejected, "temporal.requests.rejected", "Requests refused by lifecycle rules"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return &ins, nil
}

// Add increments counter by n tagged with the model name. Zero adds are skipped.
func Add(ctx context.Context, counter metric.Int64Counter, n int, model string) {
	if counter == nil || n == 0 {
		return
	}
	counter.Add(ctx, int64(n), metric.WithAttributes(attribute.String("model", model)))
}
