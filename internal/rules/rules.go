// Package rules implements the §4.2 Rule Engine: field/expression/computed validation run
// against an entity's fields during the write pipeline, mutating fields in place for computed
// rules. Grounded on station's validator.go for "collect issues, mutate in place" shape and on
// internal/workflows/runtime for expression evaluation via internal/expr.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"rocketcore/internal/expr"
	"rocketcore/pkg/model"
)

// Engine evaluates rules for an entity.
type Engine struct{}

// NewEngine constructs a rule Engine.
func NewEngine() *Engine { return &Engine{} }

// Evaluate runs every active rule for entity/hook against fields, in priority-then-insertion
// order within each phase (field, then expression, then computed), mutating fields in place
// for computed rules. Returns the accumulated validation issues.
func (e *Engine) Evaluate(rules []*model.Rule, hook model.Hook, fields, old map[string]interface{}, isCreate bool) []model.ValidationIssue {
	var issues []model.ValidationIssue

	action := "update"
	if isCreate {
		action = "create"
	}
	env := func() expr.Env {
		return expr.Env{"record": fields, "old": old, "action": action}
	}

	field, expression, computed := partitionByKind(rules, hook)

	fieldIssues, fieldAborted := e.evaluateField(field, fields)
	issues = append(issues, fieldIssues...)

	exprIssues, exprAborted := e.evaluateExpression(expression, env)
	issues = append(issues, exprIssues...)

	if len(issues) == 0 && !fieldAborted && !exprAborted {
		issues = append(issues, e.evaluateComputed(computed, fields, env)...)
	}

	return issues
}

// partitionByKind splits active rules for hook into phases, preserving insertion order within
// each phase; orderByPriority then stable-sorts each phase by priority.
func partitionByKind(rules []*model.Rule, hook model.Hook) (field, expression, computed []*model.Rule) {
	for _, r := range rules {
		if !r.Active || r.Hook != hook {
			continue
		}
		switch r.Kind {
		case model.RuleKindField:
			field = append(field, r)
		case model.RuleKindExpression:
			expression = append(expression, r)
		case model.RuleKindComputed:
			computed = append(computed, r)
		}
	}
	return
}

func (e *Engine) evaluateField(rules []*model.Rule, fields map[string]interface{}) (issues []model.ValidationIssue, aborted bool) {
	for _, r := range orderByPriority(rules) {
		v, present := fields[r.Def.Field]
		if !present || v == nil {
			continue
		}
		if issue, violated := evaluateFieldOperator(r, v); violated {
			issues = append(issues, issue)
			if r.Def.StopOnFail {
				return issues, true
			}
		}
	}
	return issues, false
}

func evaluateFieldOperator(r *model.Rule, v interface{}) (model.ValidationIssue, bool) {
	msg := r.Def.Message
	switch r.Def.Operator {
	case model.OpMin, model.OpMax:
		n, ok := toFloat(v)
		if !ok {
			return model.ValidationIssue{}, false
		}
		if r.Def.Operator == model.OpMin && n < r.Def.Threshold {
			return issueFor(r, msg, fmt.Sprintf("%s must be >= %v", r.Def.Field, r.Def.Threshold)), true
		}
		if r.Def.Operator == model.OpMax && n > r.Def.Threshold {
			return issueFor(r, msg, fmt.Sprintf("%s must be <= %v", r.Def.Field, r.Def.Threshold)), true
		}
	case model.OpMinLength, model.OpMaxLength:
		s, ok := v.(string)
		if !ok {
			return model.ValidationIssue{}, false
		}
		l := len(s)
		if r.Def.Operator == model.OpMinLength && l < int(r.Def.Threshold) {
			return issueFor(r, msg, fmt.Sprintf("%s must be at least %v characters", r.Def.Field, r.Def.Threshold)), true
		}
		if r.Def.Operator == model.OpMaxLength && l > int(r.Def.Threshold) {
			return issueFor(r, msg, fmt.Sprintf("%s must be at most %v characters", r.Def.Field, r.Def.Threshold)), true
		}
	case model.OpPattern:
		s, ok := v.(string)
		if !ok {
			return model.ValidationIssue{}, false
		}
		re, err := regexp.Compile(r.Def.Pattern)
		if err != nil || !re.MatchString(s) {
			return issueFor(r, msg, fmt.Sprintf("%s does not match required pattern", r.Def.Field)), true
		}
	}
	return model.ValidationIssue{}, false
}

func issueFor(r *model.Rule, msg, fallback string) model.ValidationIssue {
	if msg == "" {
		msg = fallback
	}
	return model.ValidationIssue{Field: r.Def.Field, Rule: string(r.Def.Operator), Message: msg}
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func (e *Engine) evaluateExpression(rules []*model.Rule, envFn func() expr.Env) (issues []model.ValidationIssue, aborted bool) {
	for _, r := range orderByPriority(rules) {
		c, err := r.CompiledExpr(compileFn)
		if err != nil {
			issues = append(issues, model.ValidationIssue{Rule: "expression", Message: err.Error()})
			if r.Def.StopOnFail {
				return issues, true
			}
			continue
		}
		violated, err := expr.EvaluateBool(c.(*expr.Compiled), envFn())
		if err != nil {
			issues = append(issues, model.ValidationIssue{Rule: "expression", Message: err.Error()})
			if r.Def.StopOnFail {
				return issues, true
			}
			continue
		}
		if violated {
			msg := r.Def.Message
			if msg == "" {
				msg = "expression rule violated"
			}
			issues = append(issues, model.ValidationIssue{Rule: "expression", Message: msg})
			if r.Def.StopOnFail {
				return issues, true
			}
		}
	}
	return issues, false
}

func (e *Engine) evaluateComputed(rules []*model.Rule, fields map[string]interface{}, envFn func() expr.Env) []model.ValidationIssue {
	var issues []model.ValidationIssue
	for _, r := range orderByPriority(rules) {
		c, err := r.CompiledExpr(compileFn)
		if err != nil {
			issues = append(issues, model.ValidationIssue{Rule: "computed", Message: err.Error()})
			continue
		}
		v, err := expr.EvaluateValue(c.(*expr.Compiled), envFn())
		if err != nil {
			issues = append(issues, model.ValidationIssue{Rule: "computed", Message: err.Error()})
			continue
		}
		fields[r.Def.Field] = v
	}
	return issues
}

func compileFn(src string) (interface{}, error) {
	return expr.Compile(src)
}

func orderByPriority(rules []*model.Rule) []*model.Rule {
	out := make([]*model.Rule, len(rules))
	copy(out, rules)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return out
}
