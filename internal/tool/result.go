package tool

// Status discriminates the three outcomes of a tool call. A denial is
// not a failure: the tool never ran.
type Status int

const (
	StatusOK Status = iota
	StatusDenied
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDenied:
		return "denied"
	default:
		return "failed"
	}
}

// Result is the outcome of one tool execution.
type Result struct {
	Status Status
	Output string
	Err    string
	Data   map[string]any
}

func OK(output string) Result {
	return Result{Status: StatusOK, Output: output}
}

func OKData(output string, data map[string]any) Result {
	return Result{Status: StatusOK, Output: output, Data: data}
}

func Fail(err string) Result {
	return Result{Status: StatusFailed, Err: err}
}

func Denied(reason string) Result {
	return Result{Status: StatusDenied, Err: reason}
}

func (r Result) IsOK() bool     { return r.Status == StatusOK }
func (r Result) IsDenied() bool { return r.Status == StatusDenied }
func (r Result) IsFailed() bool { return r.Status == StatusFailed }

// ModelText renders the result as the text fed back to the model, so it
// can explain refusals and adapt to errors instead of crashing the turn.
func (r Result) ModelText() string {
	switch r.Status {
	case StatusOK:
		return r.Output
	case StatusDenied:
		return "Denied: " + r.Err
	default:
		return "Error: " + r.Err
	}
}
