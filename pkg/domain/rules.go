package domain

import "context"

// Rule is a named check evaluated against a read-only view of type V.
type Rule[V any] interface {
	Name() string
	Evaluate(ctx context.Context, view V) (Result, error)
}

// RulesEngine orchestrates rule evaluation in registration order.
type RulesEngine[V any] struct {
	rules []Rule[V]
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine[V any]() *RulesEngine[V] {
	return &RulesEngine[V]{}
}

// Register appends a rule to the engine.
func (e *RulesEngine[V]) Register(rule Rule[V]) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules in order.
func (e *RulesEngine[V]) Rules() []Rule[V] {
	return append([]Rule[V](nil), e.rules...)
}

// Evaluate executes all registered rules and aggregates their results.
func (e *RulesEngine[V]) Evaluate(ctx context.Context, view V) (Result, error) {
	var combined Result
	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := rule.Evaluate(ctx, view)
		if err != nil {
			return Result{}, err
		}
		combined.Merge(res)
	}
	return combined, nil
}
