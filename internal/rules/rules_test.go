package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rocketcore/pkg/model"
)

func TestEngine_FieldRule_MinViolation(t *testing.T) {
	e := NewEngine()
	r := &model.Rule{
		Entity: "invoices", Hook: model.HookBeforeWrite, Kind: model.RuleKindField, Active: true,
		Def: model.RuleDefinition{Field: "total", Operator: model.OpMin, Threshold: 10},
	}
	fields := map[string]interface{}{"total": 5.0}

	issues := e.Evaluate([]*model.Rule{r}, model.HookBeforeWrite, fields, nil, true)
	require.Len(t, issues, 1)
	assert.Equal(t, "total", issues[0].Field)
}

func TestEngine_FieldRule_AbsentValueSkipped(t *testing.T) {
	e := NewEngine()
	r := &model.Rule{
		Entity: "invoices", Hook: model.HookBeforeWrite, Kind: model.RuleKindField, Active: true,
		Def: model.RuleDefinition{Field: "total", Operator: model.OpMin, Threshold: 10},
	}
	issues := e.Evaluate([]*model.Rule{r}, model.HookBeforeWrite, map[string]interface{}{}, nil, true)
	assert.Empty(t, issues)
}

func TestEngine_ExpressionRule_ViolationPredicate(t *testing.T) {
	e := NewEngine()
	r := &model.Rule{
		Entity: "invoices", Hook: model.HookBeforeWrite, Kind: model.RuleKindExpression, Active: true,
		Def: model.RuleDefinition{Expression: "record.total < 0", Message: "total cannot be negative"},
	}
	fields := map[string]interface{}{"total": -5.0}
	issues := e.Evaluate([]*model.Rule{r}, model.HookBeforeWrite, fields, nil, true)
	require.Len(t, issues, 1)
	assert.Equal(t, "total cannot be negative", issues[0].Message)
}

func TestEngine_ComputedRule_SkipsAfterPriorError(t *testing.T) {
	e := NewEngine()
	broken := &model.Rule{
		Entity: "invoices", Hook: model.HookBeforeWrite, Kind: model.RuleKindField, Active: true,
		Def: model.RuleDefinition{Field: "total", Operator: model.OpMin, Threshold: 10},
	}
	computed := &model.Rule{
		Entity: "invoices", Hook: model.HookBeforeWrite, Kind: model.RuleKindComputed, Active: true,
		Def: model.RuleDefinition{Field: "tax", Expression: "record.total * 0.1"},
	}
	fields := map[string]interface{}{"total": 1.0}
	e.Evaluate([]*model.Rule{broken, computed}, model.HookBeforeWrite, fields, nil, true)
	_, ok := fields["tax"]
	assert.False(t, ok, "computed rule should not run after a prior-phase error")
}

func TestEngine_ComputedRule_MutatesFields(t *testing.T) {
	e := NewEngine()
	computed := &model.Rule{
		Entity: "invoices", Hook: model.HookBeforeWrite, Kind: model.RuleKindComputed, Active: true,
		Def: model.RuleDefinition{Field: "tax", Expression: "record.total * 0.1"},
	}
	fields := map[string]interface{}{"total": 100.0}
	issues := e.Evaluate([]*model.Rule{computed}, model.HookBeforeWrite, fields, nil, true)
	assert.Empty(t, issues)
	assert.Equal(t, 10.0, fields["tax"])
}

func TestEngine_StopOnFail(t *testing.T) {
	e := NewEngine()
	first := &model.Rule{
		Entity: "invoices", Hook: model.HookBeforeWrite, Kind: model.RuleKindField, Active: true, Priority: 1,
		Def: model.RuleDefinition{Field: "total", Operator: model.OpMin, Threshold: 10, StopOnFail: true},
	}
	second := &model.Rule{
		Entity: "invoices", Hook: model.HookBeforeWrite, Kind: model.RuleKindField, Active: true, Priority: 2,
		Def: model.RuleDefinition{Field: "total", Operator: model.OpMax, Threshold: 1},
	}
	fields := map[string]interface{}{"total": 5.0}
	issues := e.Evaluate([]*model.Rule{first, second}, model.HookBeforeWrite, fields, nil, true)
	require.Len(t, issues, 1)
}
