package expr

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/weaverqa/weaver/internal/model"
)

// Context is the typed variable surface an expression or template is
// evaluated against. Nil payload fields are legal; referencing a field
// of a nil payload is an evaluation error, while variant predicates on
// the payload itself are not.
type Context struct {
	Event        *model.Event
	Job          *model.ArtifactJob
	Erratum      *model.Erratum
	Compose      *model.Compose
	MergeRequest *model.MergeRequest
	Issue        map[string]any
	Arch         string
	Environment  map[string]string
	TmtContext   map[string]string

	// Extra holds additional variables (e.g. the in-progress merged
	// configuration during recipe expansion).
	Extra map[string]any
}

// FromJob builds a Context exposing a job's payloads under their
// conventional variable names.
func FromJob(job *model.ArtifactJob) *Context {
	if job == nil {
		return &Context{}
	}
	return &Context{
		Event:        &job.Event,
		Job:          job,
		Erratum:      job.Erratum,
		Compose:      job.Compose,
		MergeRequest: job.MergeRequest,
	}
}

// WithMaps returns a copy of the context carrying the given environment
// and tool-context maps.
func (c *Context) WithMaps(environment, tmtContext map[string]string) *Context {
	cc := *c
	cc.Environment = environment
	cc.TmtContext = tmtContext
	return &cc
}

// Variables returns the name → value map the evaluator and the template
// renderer resolve against.
func (c *Context) Variables() map[string]any {
	vars := map[string]any{
		"EVENT":       c.Event,
		"JOB":         c.Job,
		"ERRATUM":     c.Erratum,
		"COMPOSE":     c.Compose,
		"ROG":         c.MergeRequest,
		"ISSUE":       c.Issue,
		"ENVIRONMENT": c.Environment,
		"CONTEXT":     c.TmtContext,
	}
	if c.Arch != "" {
		vars["ARCH"] = c.Arch
	}
	for k, v := range c.Extra {
		vars[k] = v
	}
	return vars
}

// lookup resolves a dotted variable path against the context.
// The root segment must name a known variable; descending into a nil
// value or an unknown field is an error.
func (c *Context) lookup(path []string) (any, error) {
	vars := c.Variables()
	root, ok := vars[path[0]]
	if !ok {
		return nil, fmt.Errorf("unknown variable %q", path[0])
	}
	cur := root
	for _, seg := range path[1:] {
		next, err := field(cur, seg)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", strings.Join(path, "."), err)
		}
		cur = next
	}
	return cur, nil
}

// field resolves one path segment against maps and structs. Struct
// fields match by yaml tag first, then by case-insensitive field name.
func field(v any, name string) (any, error) {
	if v == nil {
		return nil, fmt.Errorf("cannot access %q on an unset value", name)
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("cannot access %q on an unset value", name)
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		mv := rv.MapIndex(reflect.ValueOf(name))
		if !mv.IsValid() {
			return nil, fmt.Errorf("key %q not present", name)
		}
		return mv.Interface(), nil
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			f := rt.Field(i)
			tag := strings.Split(f.Tag.Get("yaml"), ",")[0]
			if tag == name || strings.EqualFold(f.Name, name) {
				return rv.Field(i).Interface(), nil
			}
		}
		return nil, fmt.Errorf("field %q not present", name)
	}
	return nil, fmt.Errorf("cannot access %q on %T", name, v)
}
