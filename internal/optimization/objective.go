package optimization

// Objective is the contract every solver in this module consumes. An
// implementation carries immutable problem data and pure evaluation
// operations; solvers never mutate it.
type Objective interface {
	// Function evaluates the objective at x.
	Function(x []float64) float64

	// Jacobian evaluates the gradient of the objective at x, or a
	// subgradient when the objective is not differentiable there.
	Jacobian(x []float64) []float64

	// Start returns the canonical starting point for the objective.
	// Solvers use it when the caller does not supply one.
	Start() []float64

	// FStar returns the best known lower bound on the global optimum,
	// or -Inf when no such information is available.
	FStar() float64

	// XStar returns the known optimal point, or nil when it is unknown.
	XStar() []float64
}

// Optimizer is implemented by every solver in this module. Minimize runs
// the solver from x0 (or from obj.Start() when x0 is nil) and always
// returns a result: non-convergence is reported through Result.Status,
// never as an error.
type Optimizer interface {
	Minimize(obj Objective, x0 []float64) *Result
}

// Result is the outcome of one solver run.
type Result struct {
	// X is the best point found.
	X []float64

	// F is the objective value at X.
	F float64

	// Status is the terminal status of the run.
	Status Status

	// Evaluations counts (function, gradient) evaluations performed,
	// line-search trials included.
	Evaluations int

	// Iterations counts outer iterations.
	Iterations int
}
