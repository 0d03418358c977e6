package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/temporal/internal/ir"
)

// Scenario defines a conformance test scenario: a sequence of lifecycle
// requests against one store, followed by assertions on the final state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Start is the initial clock reading (RFC 3339).
	Start string `yaml:"start"`

	// Tolerance overrides the manager's default tolerance (Go duration).
	Tolerance string `yaml:"tolerance,omitempty"`

	// Models lists CUE model files or directories. When present, records
	// are validated against them. Paths are relative to the scenario file.
	Models []string `yaml:"models,omitempty"`

	// Steps are executed in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is a single lifecycle request or clock movement.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Ref names the record: assigned by create, looked up by the others.
	Ref string `yaml:"ref,omitempty"`

	// Group, Start, End and Payload describe a create candidate.
	Group   ir.GroupKey    `yaml:"group,omitempty"`
	Start   string         `yaml:"start,omitempty"`
	End     string         `yaml:"end,omitempty"`
	Payload map[string]any `yaml:"payload,omitempty"`

	// Changes are the fields an update requests. valid_start and valid_end
	// take instants; valid_end may be null.
	Changes map[string]any `yaml:"changes,omitempty"`

	// By is the duration an advance step moves the clock.
	By string `yaml:"by,omitempty"`

	// Expect is the expected outcome: "ok", a lifecycle error code, or a
	// delete resolution. Empty means the step must succeed.
	Expect string `yaml:"expect,omitempty"`
}

// Step operations.
const (
	OpCreate         = "create"
	OpUpdate         = "update"
	OpDelete         = "delete"
	OpEnableUpdates  = "enable_updates"
	OpDisableUpdates = "disable_updates"
	OpAdvance        = "advance"
)

// Assertion validates the final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Group is the temporal group (valid, invalid, count).
	Group ir.GroupKey `yaml:"group,omitempty"`

	// At is the instant for valid and invalid. Defaults to now.
	At string `yaml:"at,omitempty"`

	// Refs are the records expected valid or invalid, in any order.
	Refs []string `yaml:"refs,omitempty"`

	// Ref is the record a record assertion inspects.
	Ref string `yaml:"ref,omitempty"`

	// Exists, when false, asserts that ref has been removed.
	Exists *bool `yaml:"exists,omitempty"`

	// Expect lists the record fields to check (record).
	Expect *RecordExpect `yaml:"expect,omitempty"`

	// Count is the expected number of records in group (count).
	Count int `yaml:"count,omitempty"`
}

// RecordExpect is a subset match on a record. Unset fields are not checked.
type RecordExpect struct {
	ValidStart     string         `yaml:"valid_start,omitempty"`
	ValidEnd       string         `yaml:"valid_end,omitempty"`
	OpenEnded      *bool          `yaml:"open_ended,omitempty"`
	UpdatesEnabled *bool          `yaml:"updates_enabled,omitempty"`
	Payload        map[string]any `yaml:"payload,omitempty"`
}

// Assertion type constants.
const (
	AssertValid   = "valid"
	AssertInvalid = "invalid"
	AssertRecord  = "record"
	AssertCount   = "count"
)

// LoadScenario reads and parses a scenario YAML file. Model paths are
// resolved relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving model paths relative to basePath.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	for i, modelPath := range scenario.Models {
		if !filepath.IsAbs(modelPath) && basePath != "" {
			scenario.Models[i] = filepath.Join(basePath, modelPath)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if _, err := time.Parse(time.RFC3339Nano, s.Start); err != nil {
		return fmt.Errorf("start must be an RFC 3339 timestamp: %q", s.Start)
	}

	if s.Tolerance != "" {
		if d, err := time.ParseDuration(s.Tolerance); err != nil || d < 0 {
			return fmt.Errorf("tolerance must be a non-negative duration: %q", s.Tolerance)
		}
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for _, modelPath := range s.Models {
		if _, err := os.Stat(modelPath); os.IsNotExist(err) {
			return fmt.Errorf("model file not found: %s", modelPath)
		}
	}

	refs := make(map[string]bool)
	for i, step := range s.Steps {
		if err := validateStep(i, &step, refs); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, refs); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks a step and tracks refs assigned by creates.
func validateStep(index int, st *Step, refs map[string]bool) error {
	switch st.Op {
	case OpCreate:
		if err := st.Group.Validate(); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
		if st.Ref != "" {
			if refs[st.Ref] {
				return fmt.Errorf("steps[%d]: ref %q already assigned", index, st.Ref)
			}
			refs[st.Ref] = true
		}
	case OpUpdate, OpDelete, OpEnableUpdates, OpDisableUpdates:
		if st.Ref == "" {
			return fmt.Errorf("steps[%d]: ref is required for %s", index, st.Op)
		}
		if !refs[st.Ref] {
			return fmt.Errorf("steps[%d]: ref %q is not assigned by an earlier create", index, st.Ref)
		}
		if st.Op == OpUpdate && st.Changes == nil {
			return fmt.Errorf("steps[%d]: changes is required for update (use an empty map for none)", index)
		}
	case OpAdvance:
		if d, err := time.ParseDuration(st.By); err != nil || d < 0 {
			return fmt.Errorf("steps[%d]: by must be a non-negative duration: %q", index, st.By)
		}
	case "":
		return fmt.Errorf("steps[%d]: op is required", index)
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, st.Op)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, refs map[string]bool) error {
	switch a.Type {
	case AssertValid, AssertInvalid:
		if err := a.Group.Validate(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		for _, ref := range a.Refs {
			if !refs[ref] {
				return fmt.Errorf("assertions[%d]: unknown ref %q", index, ref)
			}
		}
	case AssertRecord:
		if !refs[a.Ref] {
			return fmt.Errorf("assertions[%d]: unknown ref %q", index, a.Ref)
		}
		if a.Expect == nil && a.Exists == nil {
			return fmt.Errorf("assertions[%d]: expect or exists is required for record", index)
		}
	case AssertCount:
		if err := a.Group.Validate(); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// ParseInstant resolves an instant expression against the scenario clock.
// An empty expression means now.
func ParseInstant(expr string, now, start time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	var base time.Time
	var rest string
	switch {
	case expr == "":
		return now, nil
	case strings.HasPrefix(expr, "now"):
		base, rest = now, strings.TrimPrefix(expr, "now")
	case strings.HasPrefix(expr, "start"):
		base, rest = start, strings.TrimPrefix(expr, "start")
	default:
		t, err := time.Parse(time.RFC3339Nano, expr)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid instant %q", expr)
		}
		return t.UTC(), nil
	}

	if rest == "" {
		return base, nil
	}
	if rest[0] != '+' && rest[0] != '-' {
		return time.Time{}, fmt.Errorf("invalid instant %q", expr)
	}
	d, err := time.ParseDuration(rest)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid instant %q: %w", expr, err)
	}
	return base.Add(d), nil
}
