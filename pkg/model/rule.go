package model

import "sync"

// Hook names the point in the write pipeline a rule or webhook attaches to.
type Hook string

const (
	HookBeforeWrite  Hook = "before_write"
	HookAfterWrite   Hook = "after_write"
	HookBeforeDelete Hook = "before_delete"
	HookAfterDelete  Hook = "after_delete"
)

// RuleKind is the kind of validation/transform a Rule performs.
type RuleKind string

const (
	RuleKindField      RuleKind = "field"
	RuleKindExpression RuleKind = "expression"
	RuleKindComputed   RuleKind = "computed"
)

// FieldOperator is a supported §4.2 field-rule comparison.
type FieldOperator string

const (
	OpMin       FieldOperator = "min"
	OpMax       FieldOperator = "max"
	OpMinLength FieldOperator = "min_length"
	OpMaxLength FieldOperator = "max_length"
	OpPattern   FieldOperator = "pattern"
)

// RuleDefinition carries the operator/target/expression data a Rule needs to evaluate.
type RuleDefinition struct {
	Field      string        // field rules
	Operator   FieldOperator // field rules
	Threshold  float64       // min/max
	Pattern    string        // pattern
	Expression string        // expression + computed rules
	Message    string
	StopOnFail bool
}

// Rule is a single before_write validation or computation attached to an entity.
type Rule struct {
	ID       string
	Entity   string
	Hook     Hook
	Kind     RuleKind
	Def      RuleDefinition
	Priority int
	Active   bool

	// compiled is the lazily-populated, evaluator-opaque compiled expression cache
	// described in §3/§5: written at most once, read concurrently.
	compileOnce sync.Once
	compiled    interface{}
	compileErr  error
}

// CompiledExpr returns the cached compiled expression, compiling it on first use via compile.
func (r *Rule) CompiledExpr(compile func(src string) (interface{}, error)) (interface{}, error) {
	r.compileOnce.Do(func() {
		r.compiled, r.compileErr = compile(r.Def.Expression)
	})
	return r.compiled, r.compileErr
}

// ValidationIssue is the uniform shape produced by the rule engine, state-machine engine,
// and write planner for §7's VALIDATION_FAILED details.
type ValidationIssue struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}
