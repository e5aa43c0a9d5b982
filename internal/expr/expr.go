// Package expr implements the §4.1 expression evaluator: a whitelisted, side-effect-free
// boolean/value sub-language used by rules, state-machine guards, and webhook conditions.
// Its compile/evaluate shape is modeled on station's internal/workflows/runtime
// StarlarkEvaluator, reusing go.starlark.net as the sandboxed interpreter (no
// filesystem/network/reflection primitives are ever exposed to globals) but distinguishing
// parse/type/runtime failures the way §4.1 requires. Nested map access goes through
// go.starlark.net/starlarkstruct rather than the teacher's hand-rolled AttrDict — see
// attrdict.go.
package expr

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
	"go.starlark.net/syntax"
)

// maxSteps bounds a single evaluation; expressions are arithmetic/comparison/logical only, so
// this is generous headroom rather than a tuning knob.
const maxSteps = 10000

// ErrKind distinguishes the failure modes §4.1 calls out as distinct.
type ErrKind string

const (
	// ErrParse means the expression text itself does not compile.
	ErrParse ErrKind = "EVAL_PARSE"
	// ErrRuntime means compilation succeeded but evaluation failed (e.g. missing name).
	ErrRuntime ErrKind = "EVAL_RUNTIME"
	// ErrType means a boolean-context evaluation produced a non-bool result.
	ErrType ErrKind = "EVAL_TYPE"
)

// EvalError reports which phase of expression handling failed.
type EvalError struct {
	Kind ErrKind
	Err  error
}

func (e *EvalError) Error() string { return fmt.Sprintf("%s: %v", e.Kind, e.Err) }
func (e *EvalError) Unwrap() error { return e.Err }

// Compiled is a parsed, cacheable expression. Descriptors (Rule/Transition/Webhook) hold this
// behind their own sync.Once per §5's "compiled at most once, read concurrently" guarantee.
type Compiled struct {
	src  string
	expr syntax.Expr
}

// Compile parses src once; the result is safe to evaluate repeatedly against different
// environments. Returns *EvalError{Kind: ErrParse} on malformed input.
func Compile(src string) (*Compiled, error) {
	opts := syntax.FileOptions{}
	e, err := opts.ParseExpr("expression", src, 0)
	if err != nil {
		return nil, &EvalError{Kind: ErrParse, Err: err}
	}
	return &Compiled{src: src, expr: e}, nil
}

// Env is the evaluation environment: a mapping from name to value. Values may be nil, bool,
// int, int64, float64, string, []interface{}, or map[string]interface{} (nested maps are
// wrapped so dotted attribute access like record.total works; dict-style indexing is not
// supported on them).
type Env map[string]interface{}

// EvaluateValue evaluates a compiled expression against env and returns the result converted
// back to a plain Go value.
func EvaluateValue(c *Compiled, env Env) (interface{}, error) {
	thread := &starlark.Thread{Name: "expression"}
	thread.SetMaxExecutionSteps(maxSteps)

	globals := toStarlarkDict(env)
	opts := syntax.FileOptions{}
	result, err := starlark.EvalExprOptions(&opts, thread, c.expr, globals)
	if err != nil {
		return nil, &EvalError{Kind: ErrRuntime, Err: err}
	}
	return fromStarlark(result), nil
}

// EvaluateBool evaluates a compiled expression and requires a boolean result, per §4.1's
// "truthiness is explicit" rule: a non-bool result fails with ErrType rather than being
// coerced.
func EvaluateBool(c *Compiled, env Env) (bool, error) {
	thread := &starlark.Thread{Name: "condition"}
	thread.SetMaxExecutionSteps(maxSteps)

	globals := toStarlarkDict(env)
	opts := syntax.FileOptions{}
	result, err := starlark.EvalExprOptions(&opts, thread, c.expr, globals)
	if err != nil {
		return false, &EvalError{Kind: ErrRuntime, Err: err}
	}
	b, ok := result.(starlark.Bool)
	if !ok {
		return false, &EvalError{Kind: ErrType, Err: fmt.Errorf("expression %q did not evaluate to a bool", c.src)}
	}
	return bool(b), nil
}

func toStarlarkDict(env Env) starlark.StringDict {
	globals := make(starlark.StringDict, len(env))
	for k, v := range env {
		globals[k] = toStarlark(v)
	}
	return globals
}

func toStarlark(v interface{}) starlark.Value {
	switch val := v.(type) {
	case nil:
		return starlark.None
	case bool:
		return starlark.Bool(val)
	case int:
		return starlark.MakeInt(val)
	case int64:
		return starlark.MakeInt64(val)
	case float64:
		return starlark.Float(val)
	case string:
		return starlark.String(val)
	case []interface{}:
		elems := make([]starlark.Value, len(val))
		for i, e := range val {
			elems[i] = toStarlark(e)
		}
		return starlark.NewList(elems)
	case map[string]interface{}:
		return newRecordValue(val)
	default:
		return starlark.String(fmt.Sprintf("%v", val))
	}
}

func fromStarlark(v starlark.Value) interface{} {
	switch val := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(val)
	case starlark.Int:
		i, _ := val.Int64()
		return i
	case starlark.Float:
		return float64(val)
	case starlark.String:
		return string(val)
	case *starlark.List:
		out := make([]interface{}, val.Len())
		for i := 0; i < val.Len(); i++ {
			out[i] = fromStarlark(val.Index(i))
		}
		return out
	case *starlark.Dict:
		out := make(map[string]interface{})
		for _, item := range val.Items() {
			if key, ok := fromStarlark(item[0]).(string); ok {
				out[key] = fromStarlark(item[1])
			}
		}
		return out
	case *starlarkstruct.Struct:
		out := make(map[string]interface{})
		for _, name := range val.AttrNames() {
			attr, err := val.Attr(name)
			if err != nil {
				continue
			}
			out[name] = fromStarlark(attr)
		}
		return out
	default:
		return val.String()
	}
}
