package optimization

// Status describes how a solver run terminated. It is write-once: the
// first terminal value assigned by a solver halts its loop.
type Status int

const (
	// StatusRunning is the zero value while the loop is in progress.
	StatusRunning Status = iota

	// StatusOptimal means the stopping criterion was satisfied: the
	// gradient (or direction) norm fell below the configured tolerance.
	StatusOptimal

	// StatusUnbounded means an objective value at or below the finite
	// -Inf proxy m_inf was observed.
	StatusUnbounded

	// StatusStopped means the evaluation or iteration budget ran out
	// before convergence.
	StatusStopped

	// StatusError means a numerical failure stopped the run: the line
	// search collapsed below min_a, or the master problem solver failed.
	StatusError
)

var statusStrings = map[Status]string{
	StatusRunning:   "running",
	StatusOptimal:   "optimal",
	StatusUnbounded: "unbounded",
	StatusStopped:   "stopped",
	StatusError:     "error",
}

func (s Status) String() string {
	if str, ok := statusStrings[s]; ok {
		return str
	}
	return "unknown"
}

// Terminal reports whether s halts a solver loop.
func (s Status) Terminal() bool {
	return s != StatusRunning
}
