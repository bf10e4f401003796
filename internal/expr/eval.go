package expr

import (
	"fmt"

	"github.com/weaverqa/weaver/internal/model"
)

// Error is an evaluation or compilation failure. It always carries the
// offending expression source; callers add the document and field.
type Error struct {
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("expression %q: %v", e.Source, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Eval evaluates the compiled expression to a boolean.
func (p *Program) Eval(ctx *Context) (bool, error) {
	v, err := evalBool(p.root, ctx)
	if err != nil {
		return false, &Error{Source: p.src, Err: err}
	}
	return v, nil
}

// EvalWhen compiles and evaluates a `when` field. The empty string is
// vacuously true (predicates default to true when absent).
func EvalWhen(src string, ctx *Context) (bool, error) {
	if src == "" {
		return true, nil
	}
	prog, err := Compile(src)
	if err != nil {
		return false, err
	}
	return prog.Eval(ctx)
}

func evalBool(n node, ctx *Context) (bool, error) {
	switch t := n.(type) {
	case *orNode:
		for _, term := range t.terms {
			v, err := evalBool(term, ctx)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	case *andNode:
		for _, term := range t.terms {
			v, err := evalBool(term, ctx)
			if err != nil {
				return false, err
			}
			if !v {
				return false, nil
			}
		}
		return true, nil
	case *notNode:
		v, err := evalBool(t.term, ctx)
		if err != nil {
			return false, err
		}
		return !v, nil
	case *testNode:
		return evalTest(t, ctx)
	case *cmpNode:
		return evalCmp(t, ctx)
	default:
		// a bare operand: truthiness of its value
		v, err := evalOperand(n, ctx)
		if err != nil {
			return false, err
		}
		return truthy(v), nil
	}
}

// evalTest dispatches `is ...` predicates. `is not X` is the exact
// logical complement of `is X` for every input.
func evalTest(t *testNode, ctx *Context) (bool, error) {
	var result bool
	switch t.name {
	case "match":
		v, err := evalOperand(t.operand, ctx)
		if err != nil {
			return false, err
		}
		s, err := coerceString(v)
		if err != nil {
			return false, fmt.Errorf("match operand: %w", err)
		}
		// search semantics: the pattern may match anywhere
		result = t.pattern.MatchString(s)
	case "defined":
		vn, ok := t.operand.(*varNode)
		if !ok {
			return false, fmt.Errorf("defined requires a variable operand")
		}
		v, err := ctx.lookup(vn.path)
		result = err == nil && v != nil && !isNilPointer(v)
	default:
		want := testNames[t.name]
		v, err := evalOperand(t.operand, ctx)
		if err != nil {
			return false, err
		}
		got, err := eventTypeOf(v)
		if err != nil {
			return false, fmt.Errorf("%q test: %w", t.name, err)
		}
		result = got == want
	}
	if t.negated {
		return !result, nil
	}
	return result, nil
}

// eventTypeOf extracts the event variant tag from an Event or a job.
func eventTypeOf(v any) (model.EventType, error) {
	switch obj := v.(type) {
	case model.Event:
		return obj.Type, nil
	case *model.Event:
		if obj == nil {
			return "", fmt.Errorf("event is unset")
		}
		return obj.Type, nil
	case model.ArtifactJob:
		return obj.Event.Type, nil
	case *model.ArtifactJob:
		if obj == nil {
			return "", fmt.Errorf("job is unset")
		}
		return obj.Event.Type, nil
	}
	return "", fmt.Errorf("unsupported operand type %T", v)
}

func evalCmp(t *cmpNode, ctx *Context) (bool, error) {
	lhs, err := evalOperand(t.lhs, ctx)
	if err != nil {
		return false, err
	}
	rhs, err := evalOperand(t.rhs, ctx)
	if err != nil {
		return false, err
	}
	ls, lerr := coerceString(lhs)
	rs, rerr := coerceString(rhs)
	if lerr != nil || rerr != nil {
		return false, fmt.Errorf("cannot compare %T and %T", lhs, rhs)
	}
	eq := ls == rs
	if t.negated {
		return !eq, nil
	}
	return eq, nil
}

func evalOperand(n node, ctx *Context) (any, error) {
	switch t := n.(type) {
	case *strNode:
		return t.value, nil
	case *intNode:
		return t.value, nil
	case *boolNode:
		return t.value, nil
	case *varNode:
		return ctx.lookup(t.path)
	case node:
		// parenthesized boolean sub-expression used as an operand
		v, err := evalBool(t, ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("invalid operand")
}

func coerceString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case model.Arch:
		return string(s), nil
	case model.EventType:
		return string(s), nil
	case model.ContentType:
		return string(s), nil
	case model.Backend:
		return string(s), nil
	case int64:
		return fmt.Sprintf("%d", s), nil
	case int:
		return fmt.Sprintf("%d", s), nil
	case bool:
		if s {
			return "true", nil
		}
		return "false", nil
	case nil:
		return "", fmt.Errorf("value is unset")
	}
	return "", fmt.Errorf("value of type %T is not string-coercible", v)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case int64:
		return t != 0
	case int:
		return t != 0
	default:
		return !isNilPointer(v)
	}
}
