package recipe

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/weaverqa/weaver/internal/expr"
	"github.com/weaverqa/weaver/internal/lineage"
	"github.com/weaverqa/weaver/internal/model"
)

// ExpandInput carries everything one expansion needs besides the
// document itself.
type ExpandInput struct {
	// Initial is the lowest-precedence layer, typically the job's recipe
	// defaults (context/environment from the event stage).
	Initial Settings

	// CLI is the external override layer, merged last and
	// unconditionally. Document content can never override it.
	CLI Settings

	// Ctx exposes the job's event payloads to when predicates and
	// templates.
	Ctx *expr.Context

	// Key carries the ancestor lineage; Combination is filled per
	// request during expansion.
	Key lineage.RequestKey

	Log *slog.Logger
}

// Expand resolves the document into an ordered sequence of fully merged
// requests. The order is deterministic: dimensions in declaration
// order, values in declaration order, so identical input yields
// identical identifiers.
func (c *Config) Expand(in ExpandInput) ([]model.Request, error) {
	log := in.Log
	if log == nil {
		log = slog.Default()
	}
	ectx := in.Ctx
	if ectx == nil {
		ectx = &expr.Context{}
	}

	// baseline: initial layer, then fixtures
	baseline := in.Initial.Clone()
	Merge(&baseline, c.Fixtures)

	// adjustments merge in place when their gate holds; the gate is
	// consumed, never multiplied into the product
	for i, adj := range c.Adjustments {
		ok, err := evalGate(adj.When, baseline, ectx)
		if err != nil {
			return nil, &Error{
				Code:  ErrCodeEval,
				Field: fmt.Sprintf("adjustments[%d].when", i),
				Err:   err,
			}
		}
		if !ok {
			continue
		}
		gated := adj.Clone()
		gated.When = ""
		Merge(&baseline, gated)
	}

	for _, d := range c.Dimensions {
		if len(d.Values) == 0 {
			log.Warn("dimension has no values, expansion yields nothing",
				"dimension", d.Name)
		}
	}

	// Cartesian product over dimensions in declaration order. Each
	// combination starts from the baseline; a selected value's gate is
	// evaluated after the value is tentatively merged so templates can
	// reference values merged earlier in the same combination.
	type candidate struct {
		settings    Settings
		combination map[string]string
	}
	var survivors []candidate

	var walk func(dim int, work Settings, combo map[string]string) error
	walk = func(dim int, work Settings, combo map[string]string) error {
		if dim == len(c.Dimensions) {
			// residual when accumulated from fixtures and includes
			ok, err := evalGate(work.When, work, ectx)
			if err != nil {
				return &Error{Code: ErrCodeEval, Field: "fixtures.when", Err: err}
			}
			if ok {
				survivors = append(survivors, candidate{settings: work, combination: combo})
			}
			return nil
		}
		d := c.Dimensions[dim]
		for vi, value := range d.Values {
			tentative := work.Clone()
			gated := value.Clone()
			gated.When = ""
			Merge(&tentative, gated)
			ok, err := evalGate(value.When, tentative, ectx)
			if err != nil {
				return &Error{
					Code:  ErrCodeEval,
					Field: fmt.Sprintf("dimensions.%s[%d].when", d.Name, vi),
					Err:   err,
				}
			}
			if !ok {
				continue
			}
			next := cloneMap(combo)
			if next == nil {
				next = map[string]string{}
			}
			next[d.Name] = strconv.Itoa(vi + 1)
			if err := walk(dim+1, tentative, next); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0, baseline, nil); err != nil {
		return nil, err
	}

	total := len(survivors)
	requests := make([]model.Request, 0, total)
	for i, cand := range survivors {
		merged := cand.settings
		Merge(&merged, in.CLI)

		rctx := renderContext(merged, ectx)
		if err := renderSettings(&merged, rctx); err != nil {
			return nil, err
		}

		key := in.Key
		key.Combination = cand.combination
		id, err := lineage.RequestID(key, i+1, total)
		if err != nil {
			return nil, &Error{Code: ErrCodeEval, Field: "id", Err: err}
		}
		requests = append(requests, merged.Request(id))
	}
	return requests, nil
}

// evalGate evaluates a when predicate against the in-progress merged
// configuration. An empty predicate is true.
func evalGate(when string, work Settings, ectx *expr.Context) (bool, error) {
	if when == "" {
		return true, nil
	}
	return expr.EvalWhen(when, renderContext(work, ectx))
}

// renderContext exposes the merged configuration's own values alongside
// the job payloads.
func renderContext(work Settings, ectx *expr.Context) *expr.Context {
	out := ectx.WithMaps(work.Environment, work.Context)
	out.Arch = string(work.Arch)
	if work.Compose != "" {
		out.Compose = &model.Compose{ID: work.Compose}
	}
	return out
}

// renderSettings template-renders every string field of the merged
// configuration. A render failure names the offending field.
func renderSettings(s *Settings, ectx *expr.Context) error {
	render := func(field string, v *string) error {
		if *v == "" {
			return nil
		}
		out, err := expr.Render(*v, ectx)
		if err != nil {
			return &Error{Code: ErrCodeEval, Field: field, Err: err}
		}
		*v = out
		return nil
	}
	if err := render("compose", &s.Compose); err != nil {
		return err
	}
	for k := range s.Environment {
		v := s.Environment[k]
		if err := render("environment."+k, &v); err != nil {
			return err
		}
		s.Environment[k] = v
	}
	for k := range s.Context {
		v := s.Context[k]
		if err := render("context."+k, &v); err != nil {
			return err
		}
		s.Context[k] = v
	}
	if s.Plan != nil {
		for field, v := range map[string]*string{
			"plan.url": &s.Plan.URL, "plan.ref": &s.Plan.Ref,
			"plan.path": &s.Plan.Path, "plan.name": &s.Plan.Name,
			"plan.filter": &s.Plan.Filter, "plan.cli_args": &s.Plan.CLIArgs,
		} {
			if err := render(field, v); err != nil {
				return err
			}
		}
	}
	if s.Farm != nil {
		if err := render("farm.cli_args", &s.Farm.CLIArgs); err != nil {
			return err
		}
	}
	if s.Launch != nil {
		for field, v := range map[string]*string{
			"launch.name":              &s.Launch.Name,
			"launch.description":       &s.Launch.Description,
			"launch.suite_description": &s.Launch.SuiteDescription,
		} {
			if err := render(field, v); err != nil {
				return err
			}
		}
		for k := range s.Launch.Attributes {
			v := s.Launch.Attributes[k]
			if err := render("launch.attributes."+k, &v); err != nil {
				return err
			}
			s.Launch.Attributes[k] = v
		}
	}
	return nil
}
