package model

// Backend selects how a request is executed.
type Backend string

const (
	// BackendFarm submits the request to the remote test-execution service.
	BackendFarm Backend = "farm"
	// BackendLocal is declared for local execution. It is not fully
	// implemented; submission yields a no-op placeholder handle.
	BackendLocal Backend = "local"
)

// Plan locates the test plan a request runs.
type Plan struct {
	URL     string `yaml:"url,omitempty"`
	Ref     string `yaml:"ref,omitempty"`
	Path    string `yaml:"path,omitempty"`
	Name    string `yaml:"name,omitempty"`
	Filter  string `yaml:"filter,omitempty"`
	CLIArgs string `yaml:"cli_args,omitempty"`
}

// Farm carries extra arguments for the remote execution backend.
type Farm struct {
	CLIArgs string `yaml:"cli_args,omitempty"`
}

// Launch names the results-aggregation launch a request reports into.
type Launch struct {
	Name             string            `yaml:"name,omitempty"`
	Description      string            `yaml:"description,omitempty"`
	SuiteDescription string            `yaml:"suite_description,omitempty"`
	UUID             string            `yaml:"uuid,omitempty"`
	URL              string            `yaml:"url,omitempty"`
	Attributes       map[string]string `yaml:"attributes,omitempty"`
}

// Request is one fully merged work item produced by recipe expansion.
type Request struct {
	ID          string            `yaml:"id"`
	Context     map[string]string `yaml:"context,omitempty"`
	Environment map[string]string `yaml:"environment,omitempty"`
	Arch        Arch              `yaml:"arch,omitempty"`
	Compose     string            `yaml:"compose,omitempty"`
	Plan        *Plan             `yaml:"plan,omitempty"`
	Farm        *Farm             `yaml:"farm,omitempty"`
	Launch      *Launch           `yaml:"launch,omitempty"`
	How         Backend           `yaml:"how,omitempty"`
	// When is the residual predicate from merged layers. It is consumed
	// during expansion and carried only for traceability.
	When string `yaml:"when,omitempty"`
}
