package model

// Result is the terminal outcome of one request's execution.
type Result string

const (
	ResultPassed  Result = "passed"
	ResultFailed  Result = "failed"
	ResultError   Result = "error"
	ResultSkipped Result = "skipped"
	// ResultNone marks a request without a known outcome yet.
	ResultNone Result = "none"
)

// Results lists the recognized outcome values.
func Results() []Result {
	return []Result{ResultPassed, ResultFailed, ResultError, ResultSkipped, ResultNone}
}

// ParseResult validates a result value supplied on the command line.
func ParseResult(s string) (Result, bool) {
	for _, r := range Results() {
		if string(r) == s {
			return r, true
		}
	}
	return "", false
}

// ExecutionState tracks where a request is in its backend lifecycle.
type ExecutionState string

const (
	StatePending   ExecutionState = "pending"
	StateSubmitted ExecutionState = "submitted"
	StateRunning   ExecutionState = "running"
	StateComplete  ExecutionState = "complete"
	StateErrored   ExecutionState = "error"
	StateCancelled ExecutionState = "cancelled"
)

// TerminalStates is the set of backend states after which a request will
// not progress further.
var TerminalStates = map[ExecutionState]bool{
	StateComplete:  true,
	StateErrored:   true,
	StateCancelled: true,
}

// Execution is the outcome block the orchestrator appends to a request.
type Execution struct {
	BatchID      string         `yaml:"batch_id"`
	State        ExecutionState `yaml:"state,omitempty"`
	Result       Result         `yaml:"result,omitempty"`
	BackendID    string         `yaml:"backend_id,omitempty"`
	BackendAPI   string         `yaml:"backend_api,omitempty"`
	ArtifactsURL string         `yaml:"artifacts_url,omitempty"`
	Command      string         `yaml:"command,omitempty"`
	ReturnCode   int            `yaml:"return_code,omitempty"`
}

// Finished reports whether the execution reached a terminal state.
func (e Execution) Finished() bool {
	return TerminalStates[e.State]
}
