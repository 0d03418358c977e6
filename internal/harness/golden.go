package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/temporal/internal/ir"
)

// Snapshot captures a scenario's trace and final records as canonical
// JSON for byte-for-byte golden comparison.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.Array, len(result.Trace))
	for i, ev := range result.Trace {
		obj := ir.Object{
			"step":    ir.Int(ev.Step),
			"op":      ir.String(ev.Op),
			"at":      ir.String(ev.At),
			"outcome": ir.String(ev.Outcome),
		}
		if ev.Ref != "" {
			obj["ref"] = ir.String(ev.Ref)
		}
		if ev.RecordID != "" {
			obj["record_id"] = ir.String(ev.RecordID)
		}
		trace[i] = obj
	}

	records := make(ir.Array, len(result.Records))
	for i, rec := range result.Records {
		obj := ir.Object{
			"id":              ir.String(rec.ID),
			"model":           ir.String(rec.Group.Model),
			"parent_id":       ir.String(rec.Group.ParentID),
			"valid_start":     ir.String(formatInstant(rec.ValidStart)),
			"valid_end":       ir.Null{},
			"updates_enabled": ir.Bool(rec.UpdatesEnabled),
			"payload":         ir.Object{},
		}
		if rec.Group.ParentType != "" {
			obj["parent_type"] = ir.String(rec.Group.ParentType)
		}
		if rec.ValidEnd != nil {
			obj["valid_end"] = ir.String(formatInstant(*rec.ValidEnd))
		}
		if rec.Payload != nil {
			obj["payload"] = rec.Payload
		}
		records[i] = obj
	}

	return ir.MarshalCanonical(ir.Object{
		"scenario": ir.String(name),
		"trace":    trace,
		"records":  records,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an already computed result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
