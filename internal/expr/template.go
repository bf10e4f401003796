package expr

import (
	"fmt"
	"reflect"
	"strings"
	"text/template"
)

// renderLimit bounds fixpoint template rendering so self-referential
// templates terminate with a diagnostic instead of spinning.
const renderLimit = 50

// Render renders a textual field as a template against the context,
// repeatedly until the output stabilizes, so a variable whose value is
// itself a template resolves fully. Unresolved variables are hard
// errors, never empty strings.
func Render(tmpl string, ctx *Context) (string, error) {
	if !strings.Contains(tmpl, "{{") {
		return strings.TrimSpace(tmpl), nil
	}
	vars := ctx.Variables()
	old := tmpl
	for i := 0; i < renderLimit; i++ {
		nw, err := renderOnce(old, vars)
		if err != nil {
			return "", &Error{Source: tmpl, Err: err}
		}
		nw = strings.TrimSpace(nw)
		if nw == old {
			return nw, nil
		}
		old = nw
	}
	return "", &Error{Source: tmpl, Err: fmt.Errorf("template recursion limit %d reached", renderLimit)}
}

func renderOnce(src string, vars map[string]any) (string, error) {
	t, err := template.New("field").Option("missingkey=error").Parse(src)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var b strings.Builder
	if err := t.Execute(&b, vars); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	out := b.String()
	// text/template prints missing map keys and nil pointers as
	// "<no value>"; surface those as the hard errors they are.
	if strings.Contains(out, "<no value>") {
		return "", fmt.Errorf("template references an unset variable")
	}
	return out, nil
}

// RenderBool evaluates a boolean-valued document field. A literal
// boolean is used as-is; a string is rendered as a template and coerced
// case-insensitively: {"true", "1", "yes"} are true, anything else is
// false.
func RenderBool(field any, ctx *Context) (bool, error) {
	switch v := field.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		rendered, err := Render(v, ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(rendered) {
		case "true", "1", "yes":
			return true, nil
		}
		return false, nil
	}
	return false, fmt.Errorf("boolean field has unsupported type %T", field)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
