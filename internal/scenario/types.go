package scenario

// Request defines the inbound request under test.
type Request struct {
	UserAgent string            `yaml:"user_agent,omitempty"`
	Path      string            `yaml:"path,omitempty"`
	Headers   map[string]string `yaml:"headers,omitempty"`
	Body      string            `yaml:"body,omitempty"`
	Source    string            `yaml:"source,omitempty"`
}

// Case is one test case within a scenario. The request is sent repeat
// times (default 1) through a fresh gate; expect names the action of
// the final request.
type Case struct {
	Request Request `yaml:"request"`
	Repeat  int     `yaml:"repeat,omitempty"`
	Expect  string  `yaml:"expect"`
}

// Scenario is a named collection of rule test cases.
type Scenario struct {
	Name  string `yaml:"name"`
	Cases []Case `yaml:"cases"`
}

// CaseResult is the outcome of evaluating one test case.
type CaseResult struct {
	Index      int      `json:"index"`
	Passed     bool     `json:"passed"`
	UserAgent  string   `json:"user_agent"`
	Source     string   `json:"source"`
	Expected   string   `json:"expected"`
	Actual     string   `json:"actual"`
	Indicators []string `json:"indicators,omitempty"`
}

// RunResult is the outcome of running all cases in one scenario file.
type RunResult struct {
	File   string       `json:"file"`
	Name   string       `json:"name"`
	Total  int          `json:"total"`
	Passed int          `json:"passed"`
	Failed int          `json:"failed"`
	Cases  []CaseResult `json:"cases"`
}
