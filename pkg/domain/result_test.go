package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestResultMergeAndBlocking(t *testing.T) {
	var result Result
	result.Merge(Result{Violations: []Violation{{Rule: "warn", Severity: SeverityWarn}}})
	if result.HasBlocking() {
		t.Fatalf("expected no blocking violations")
	}
	result.Merge(Result{Violations: []Violation{{Rule: "block", Severity: SeverityBlock}}})
	if !result.HasBlocking() {
		t.Fatalf("expected blocking violation")
	}
	if result.Count(SeverityBlock) != 1 || result.Count(SeverityWarn) != 1 {
		t.Fatalf("unexpected counts: %+v", result.Violations)
	}
	err := RuleViolationError{Result: result}
	if err.Error() == "" {
		t.Fatalf("expected error string")
	}
}

func TestResultMergeEmptyInput(t *testing.T) {
	original := Result{Violations: []Violation{{Rule: "existing", Severity: SeverityWarn}}}
	original.Merge(Result{})
	if len(original.Violations) != 1 || original.Violations[0].Rule != "existing" {
		t.Fatalf("expected original violations to remain, got %+v", original.Violations)
	}
}

func TestResultEntityIDs(t *testing.T) {
	var r Result
	r.Add(Violation{Severity: SeverityBlock, Entity: EntityCell, EntityID: "b"})
	r.Add(Violation{Severity: SeverityBlock, Entity: EntityCell, EntityID: "a"})
	r.Add(Violation{Severity: SeverityBlock, Entity: EntityCell, EntityID: "b"})
	r.Add(Violation{Severity: SeverityWarn, Entity: EntityCell, EntityID: "c"})
	r.Add(Violation{Severity: SeverityBlock, Entity: EntityConsensus, EntityID: "d"})
	got := r.EntityIDs(EntityCell)
	if len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Fatalf("unexpected ids %v", got)
	}
}

func TestRulesEngineEvaluate(t *testing.T) {
	engine := NewRulesEngine[int]()
	engine.Register(staticRule{"warn"})
	engine.Register(staticRule{"second"})
	res, err := engine.Evaluate(context.Background(), 3)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 2 || res.Violations[0].Message != "warn:3" {
		t.Fatalf("unexpected violations %+v", res.Violations)
	}
	if len(engine.Rules()) != 2 {
		t.Fatalf("expected two rules")
	}
}

type staticRule struct{ name string }

func (r staticRule) Name() string { return r.name }

func (r staticRule) Evaluate(ctx context.Context, view int) (Result, error) {
	return Result{Violations: []Violation{{Rule: r.name, Severity: SeverityWarn, Message: fmt.Sprintf("%s:%d", r.name, view)}}}, nil
}

func TestRulesEngineEvaluateError(t *testing.T) {
	engine := NewRulesEngine[int]()
	engine.Register(errorRule{})
	if _, err := engine.Evaluate(context.Background(), 0); err == nil {
		t.Fatalf("expected evaluation error")
	}
}

func TestRulesEngineHonoursCancellation(t *testing.T) {
	engine := NewRulesEngine[int]()
	engine.Register(staticRule{"never"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := engine.Evaluate(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

type errorRule struct{}

func (errorRule) Name() string { return "error" }

func (errorRule) Evaluate(ctx context.Context, view int) (Result, error) {
	return Result{}, fmt.Errorf("boom")
}

func TestErrorValues(t *testing.T) {
	nf := ErrNotFound{Entity: EntityDataset, ID: "x"}
	if nf.Error() != "dataset x not found" {
		t.Fatalf("unexpected message %q", nf.Error())
	}
	wrapped := fmt.Errorf("load: %w", UnsupportedVersionError{Version: "9.0.0", Supported: "1.0.0"})
	var uv UnsupportedVersionError
	if !errors.As(wrapped, &uv) || uv.Version != "9.0.0" {
		t.Fatalf("expected UnsupportedVersionError, got %v", wrapped)
	}
}
