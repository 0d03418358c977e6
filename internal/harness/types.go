package harness

import "github.com/roach88/temporal/internal/ir"

// Step outcomes other than error codes and delete resolutions.
const (
	OutcomeOK = "ok"
)

// TraceEvent records one executed step.
type TraceEvent struct {
	Step     int    `json:"step"`
	Op       string `json:"op"`
	Ref      string `json:"ref,omitempty"`
	RecordID string `json:"record_id,omitempty"`
	At       string `json:"at"`
	Outcome  string `json:"outcome"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true if every step matched its expect and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace contains the executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Records is the final history of every group the scenario touched,
	// in the order the groups were first used.
	Records []ir.Record `json:"records"`

	// Refs maps scenario refs to record ids.
	Refs map[string]string `json:"refs"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Records: []ir.Record{},
		Refs:    make(map[string]string),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(ev TraceEvent) {
	r.Trace = append(r.Trace, ev)
}
