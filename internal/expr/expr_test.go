package expr

import "testing"

func TestEvaluateBool(t *testing.T) {
	c, err := Compile("record.total > 100 && record.status == \"open\"")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	env := Env{
		"record": map[string]interface{}{"total": 150, "status": "open"},
	}
	ok, err := EvaluateBool(c, env)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !ok {
		t.Fatal("expected true")
	}
}

func TestEvaluateBool_TypeMismatch(t *testing.T) {
	c, err := Compile("record.total")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	env := Env{"record": map[string]interface{}{"total": 5}}
	_, err = EvaluateBool(c, env)
	if err == nil {
		t.Fatal("expected type error for non-bool result")
	}
	ee, ok := err.(*EvalError)
	if !ok || ee.Kind != ErrType {
		t.Fatalf("expected ErrType, got %v", err)
	}
}

func TestCompile_ParseError(t *testing.T) {
	_, err := Compile("record.total >")
	if err == nil {
		t.Fatal("expected parse error")
	}
	ee, ok := err.(*EvalError)
	if !ok || ee.Kind != ErrParse {
		t.Fatalf("expected ErrParse, got %v", err)
	}
}

func TestEvaluateValue(t *testing.T) {
	c, err := Compile("record.total * 2")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	env := Env{"record": map[string]interface{}{"total": 21}}
	v, err := EvaluateValue(c, env)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	n, ok := v.(int64)
	if !ok || n != 42 {
		t.Fatalf("expected 42, got %v (%T)", v, v)
	}
}

func TestEvaluateBool_RuntimeError(t *testing.T) {
	c, err := Compile("undefined_name == true")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	_, err = EvaluateBool(c, Env{})
	if err == nil {
		t.Fatal("expected runtime error for undefined name")
	}
	ee, ok := err.(*EvalError)
	if !ok || ee.Kind != ErrRuntime {
		t.Fatalf("expected ErrRuntime, got %v", err)
	}
}

func TestEvaluateValue_WholeRecordRoundTrips(t *testing.T) {
	c, err := Compile("record")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	env := Env{"record": map[string]interface{}{"total": 21, "status": "open"}}
	v, err := EvaluateValue(c, env)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map[string]interface{}, got %T", v)
	}
	if m["status"] != "open" {
		t.Fatalf("expected status open, got %v", m["status"])
	}
}

func TestNestedValue(t *testing.T) {
	data := map[string]interface{}{
		"trigger": map[string]interface{}{
			"record": map[string]interface{}{"id": "abc"},
		},
	}
	v, ok := GetNestedValue(data, "trigger.record.id")
	if !ok || v != "abc" {
		t.Fatalf("expected abc, got %v ok=%v", v, ok)
	}

	SetNestedValue(data, "trigger.record.status", "open")
	v, ok = GetNestedValue(data, "trigger.record.status")
	if !ok || v != "open" {
		t.Fatalf("expected open, got %v ok=%v", v, ok)
	}
}
