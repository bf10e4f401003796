package recipe

import (
	"fmt"

	"github.com/weaverqa/weaver/internal/model"
)

// Settings is one partial configuration layer: a fixtures block, one
// adjustment, one dimension value, or the CLI override layer. Every
// field is optional; unset fields leave the layer underneath visible.
type Settings struct {
	Context     map[string]string `yaml:"context,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Compose     string            `yaml:"compose,omitempty"`
	Arch        model.Arch        `yaml:"arch,omitempty"`
	Plan        *model.Plan       `yaml:"plan,omitempty"`
	Farm        *model.Farm       `yaml:"farm,omitempty"`
	Launch      *model.Launch     `yaml:"launch,omitempty"`
	How         model.Backend     `yaml:"how,omitempty"`
	When        string            `yaml:"when,omitempty"`
}

// Clone returns a deep copy so merges never corrupt a source layer.
func (s Settings) Clone() Settings {
	out := s
	out.Context = cloneMap(s.Context)
	out.Environment = cloneMap(s.Environment)
	if s.Plan != nil {
		p := *s.Plan
		out.Plan = &p
	}
	if s.Farm != nil {
		f := *s.Farm
		out.Farm = &f
	}
	if s.Launch != nil {
		l := *s.Launch
		l.Attributes = cloneMap(s.Launch.Attributes)
		out.Launch = &l
	}
	return out
}

// IsZero reports whether the layer sets nothing.
func (s Settings) IsZero() bool {
	return len(s.Context) == 0 && len(s.Environment) == 0 &&
		s.Compose == "" && s.Arch == "" && s.Plan == nil &&
		s.Farm == nil && s.Launch == nil && s.How == "" && s.When == ""
}

// Merge overlays src onto dst. Two modes apply per key: context and
// environment merge key-by-key, when clauses join with "and", every
// other key replaces wholesale. The wholesale replacement is
// intentional; a dimension value that sets plan replaces the whole
// plan block from lower layers.
func Merge(dst *Settings, src Settings) {
	if len(src.Context) > 0 {
		if dst.Context == nil {
			dst.Context = make(map[string]string, len(src.Context))
		}
		for k, v := range src.Context {
			dst.Context[k] = v
		}
	}
	if len(src.Environment) > 0 {
		if dst.Environment == nil {
			dst.Environment = make(map[string]string, len(src.Environment))
		}
		for k, v := range src.Environment {
			dst.Environment[k] = v
		}
	}
	if src.When != "" {
		if dst.When == "" {
			dst.When = fmt.Sprintf("( %s )", src.When)
		} else {
			dst.When = fmt.Sprintf("%s and ( %s )", dst.When, src.When)
		}
	}
	if src.Compose != "" {
		dst.Compose = src.Compose
	}
	if src.Arch != "" {
		dst.Arch = src.Arch
	}
	if src.How != "" {
		dst.How = src.How
	}
	if src.Plan != nil {
		p := *src.Plan
		dst.Plan = &p
	}
	if src.Farm != nil {
		f := *src.Farm
		dst.Farm = &f
	}
	if src.Launch != nil {
		l := *src.Launch
		l.Attributes = cloneMap(src.Launch.Attributes)
		dst.Launch = &l
	}
}

// MergeAll folds a sequence of layers into one, first to last.
func MergeAll(layers ...Settings) Settings {
	var out Settings
	for _, layer := range layers {
		Merge(&out, layer)
	}
	return out
}

// Request converts fully merged settings into a request record. The
// consumed when clause is carried for traceability only.
func (s Settings) Request(id string) model.Request {
	return model.Request{
		ID:          id,
		Context:     s.Context,
		Environment: s.Environment,
		Arch:        s.Arch,
		Compose:     s.Compose,
		Plan:        s.Plan,
		Farm:        s.Farm,
		Launch:      s.Launch,
		How:         s.How,
		When:        s.When,
	}
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
