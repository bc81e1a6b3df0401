// Package domain holds the shared vocabulary of nucleicore: entity kinds,
// validation findings, error values and the persisted snapshot graph.
package domain

// EntityType identifies the kind of object a finding or lookup refers to.
type EntityType string

// Supported entity types.
const (
	// EntityDataset is a node in the dataset tree.
	EntityDataset EntityType = "dataset"
	// EntityCollection is the cell collection held by a dataset.
	EntityCollection EntityType = "collection"
	// EntityCell is a cell with one or more nuclei.
	EntityCell EntityType = "cell"
	// EntityNucleus is a profiled member object.
	EntityNucleus EntityType = "nucleus"
	// EntityConsensus is the consensus shape of a collection.
	EntityConsensus EntityType = "consensus"
	EntitySegment      EntityType = "segment"
	EntityClusterGroup EntityType = "cluster_group"
	EntitySnapshot     EntityType = "snapshot"
)

// Severity captures rule outcomes.
type Severity string

// Severity levels.
const (
	// SeverityBlock marks a finding that fails validation.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but does not fail validation.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Change describes a mutation applied to an entity, such as a landmark moved
// during repair.
type Change struct {
	Entity   EntityType
	EntityID string
	Action   Action
	Before   ChangePayload
	After    ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed check.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// Add appends a single violation.
func (r *Result) Add(v Violation) {
	r.Violations = append(r.Violations, v)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// Count returns the number of violations at the given severity.
func (r Result) Count(sev Severity) int {
	n := 0
	for _, v := range r.Violations {
		if v.Severity == sev {
			n++
		}
	}
	return n
}

// EntityIDs returns the distinct ids of blocking violations against entity,
// in first-seen order.
func (r Result) EntityIDs(entity EntityType) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range r.Violations {
		if v.Severity != SeverityBlock || v.Entity != entity || v.EntityID == "" {
			continue
		}
		if _, ok := seen[v.EntityID]; ok {
			continue
		}
		seen[v.EntityID] = struct{}{}
		out = append(out, v.EntityID)
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "validation failed with blocking findings"
}
