package recipe

import (
	_ "embed"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

var urlPattern = regexp.MustCompile(`^https?://`)

// Load resolves a recipe document from a file path or http(s) URL,
// validates it against the embedded schema and processes includes
// depth-first. Included documents contribute fixtures (later includes
// override earlier, the document's own fixtures override all) and
// append adjustments before the document's own. Include cycles are
// errors naming the cycle.
func Load(source string) (*Config, error) {
	return load(source, nil)
}

func load(source string, stack []string) (*Config, error) {
	if slices.Contains(stack, source) {
		return nil, &Error{
			Code:   ErrCodeIncludeCycle,
			Source: source,
			Err:    fmt.Errorf("include cycle: %v", append(stack, source)),
		}
	}

	data, err := fetch(source)
	if err != nil {
		return nil, &Error{Code: ErrCodeFetch, Source: source, Err: err}
	}
	if err := validate(source, data); err != nil {
		return nil, err
	}

	var base Config
	if err := yaml.Unmarshal(data, &base); err != nil {
		return nil, &Error{Code: ErrCodeParse, Source: source, Err: err}
	}

	if len(base.Includes) == 0 {
		return &base, nil
	}

	stack = append(stack, source)
	var fixtureLayers []Settings
	var adjustments []Settings
	for _, inc := range base.Includes {
		incCfg, err := load(inc, stack)
		if err != nil {
			return nil, err
		}
		if !incCfg.Fixtures.IsZero() {
			fixtureLayers = append(fixtureLayers, incCfg.Fixtures)
		}
		adjustments = append(adjustments, incCfg.Adjustments...)
	}
	if !base.Fixtures.IsZero() {
		fixtureLayers = append(fixtureLayers, base.Fixtures)
	}
	base.Fixtures = MergeAll(fixtureLayers...)
	base.Adjustments = append(adjustments, base.Adjustments...)
	return &base, nil
}

// fetch reads the document bytes from a file or http(s) URL.
func fetch(source string) ([]byte, error) {
	if !urlPattern.MatchString(source) {
		return os.ReadFile(source)
	}
	resp, err := http.Get(source)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// validate checks the raw document against the embedded CUE schema.
func validate(source string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE)
	if err := schema.Err(); err != nil {
		return fmt.Errorf("recipe schema: %w", err)
	}
	file, err := cueyaml.Extract(source, data)
	if err != nil {
		return &Error{Code: ErrCodeParse, Source: source, Err: err}
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return &Error{Code: ErrCodeParse, Source: source, Err: err}
	}
	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Concrete(false)); err != nil {
		return &Error{Code: ErrCodeSchema, Source: source, Err: err}
	}
	return nil
}
