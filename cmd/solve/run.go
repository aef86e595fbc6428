package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/accelgrad"
	"github.com/copyleftdev/descent/internal/optimization/bundle"
	"github.com/copyleftdev/descent/internal/optimization/quadratic"
	"github.com/copyleftdev/descent/internal/optimization/steepest"
)

var (
	solverName string
	objective  string
	dim        int
	qRows      []string
	bTerm      []float64
	x0         []float64
	eps        float64
	maxFEval   int
	aStart     float64
	m1         float64
	formula    string
	monotone   bool
	mu         float64
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a solver against a built-in objective",
	Long: `Runs one of the solvers (steepest, accelgrad, bundle) against a
built-in objective (sphere, rosenbrock, abssum, quadratic) and prints
the result as JSON on stdout.`,
	RunE: runSolve,
}

func init() {
	runCmd.Flags().StringVar(&solverName, "solver", "steepest", "Solver: steepest, accelgrad, bundle")
	runCmd.Flags().StringVar(&objective, "objective", "sphere", "Objective: sphere, rosenbrock, abssum, quadratic")
	runCmd.Flags().IntVar(&dim, "dim", 2, "Dimension of the sphere/abssum objectives")
	runCmd.Flags().StringArrayVar(&qRows, "q-row", nil, "Row of the quadratic's Q matrix, comma-separated (repeat per row)")
	runCmd.Flags().Float64SliceVar(&bTerm, "b", nil, "Linear term of the quadratic objective")
	runCmd.Flags().Float64SliceVar(&x0, "x0", nil, "Starting point (defaults to the objective's)")
	runCmd.Flags().Float64Var(&eps, "eps", 1e-6, "Stopping tolerance (negative for relative)")
	runCmd.Flags().IntVar(&maxFEval, "max-f-eval", 1000, "Evaluation budget")
	runCmd.Flags().Float64Var(&aStart, "a-start", 1, "Initial step size")
	runCmd.Flags().Float64Var(&m1, "m1", -1, "Sufficient-decrease parameter (unset keeps the solver default)")
	runCmd.Flags().StringVar(&formula, "formula", "nesterov", "Accelgrad formula: nesterov, fista, simple, accumulated")
	runCmd.Flags().BoolVar(&monotone, "monotone", false, "Monotone accelgrad variant")
	runCmd.Flags().Float64Var(&mu, "mu", 1, "Bundle stabilization weight")

	rootCmd.AddCommand(runCmd)
}

func runSolve(cmd *cobra.Command, args []string) error {
	obj, err := buildObjective()
	if err != nil {
		return err
	}
	solver, err := buildSolver()
	if err != nil {
		return err
	}
	if x0 != nil {
		if want := len(obj.Start()); len(x0) != want {
			return fmt.Errorf("x0 has length %d but the objective is %d-dimensional", len(x0), want)
		}
	}

	start := time.Now()
	res := solver.Minimize(obj, x0)
	elapsed := time.Since(start)

	out := map[string]interface{}{
		"solver":      solverName,
		"objective":   objective,
		"status":      res.Status.String(),
		"x":           res.X,
		"f":           res.F,
		"evaluations": res.Evaluations,
		"iterations":  res.Iterations,
		"elapsed_ms":  float64(elapsed.Microseconds()) / 1000.0,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func buildObjective() (optimization.Objective, error) {
	switch objective {
	case "sphere":
		if dim <= 0 {
			return nil, fmt.Errorf("--dim must be > 0")
		}
		return optimization.Sphere{Dim: dim}, nil
	case "abssum":
		if dim <= 0 {
			return nil, fmt.Errorf("--dim must be > 0")
		}
		return optimization.AbsSum{Dim: dim}, nil
	case "rosenbrock":
		return optimization.Rosenbrock{}, nil
	case "quadratic":
		return buildQuadratic()
	default:
		return nil, fmt.Errorf("unknown objective %q", objective)
	}
}

func buildQuadratic() (optimization.Objective, error) {
	n := len(qRows)
	if n == 0 {
		return nil, fmt.Errorf("quadratic objective requires --q-row")
	}
	data := make([]float64, 0, n*n)
	for i, row := range qRows {
		parts := strings.Split(row, ",")
		if len(parts) != n {
			return nil, fmt.Errorf("--q-row %d has %d entries, want %d", i, len(parts), n)
		}
		for _, p := range parts {
			v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return nil, fmt.Errorf("--q-row %d: %w", i, err)
			}
			data = append(data, v)
		}
	}
	return quadratic.New(mat.NewSymDense(n, data), bTerm)
}

func buildSolver() (optimization.Optimizer, error) {
	switch solverName {
	case "steepest":
		opts := steepest.Defaults()
		opts.Eps = eps
		opts.MaxFEval = maxFEval
		opts.AStart = aStart
		opts.Logger = zapLogger
		if m1 >= 0 {
			opts.M1 = m1
		}
		return steepest.New(opts)
	case "accelgrad":
		opts := accelgrad.Defaults()
		opts.Eps = eps
		opts.MaxFEval = maxFEval
		opts.AStart = aStart
		opts.Mon = monotone
		opts.Logger = zapLogger
		if m1 >= 0 {
			opts.M1 = m1
		}
		switch formula {
		case "nesterov":
			opts.WF = accelgrad.FormulaNesterov
		case "fista":
			opts.WF = accelgrad.FormulaFISTA
		case "simple":
			opts.WF = accelgrad.FormulaSimple
		case "accumulated":
			opts.WF = accelgrad.FormulaAccumulated
		default:
			return nil, fmt.Errorf("unknown formula %q", formula)
		}
		return accelgrad.New(opts)
	case "bundle":
		opts := bundle.Defaults()
		opts.Eps = eps
		opts.MaxIter = maxFEval
		opts.Mu = mu
		opts.Logger = zapLogger
		if m1 >= 0 {
			opts.M1 = m1
		}
		return bundle.New(opts)
	default:
		return nil, fmt.Errorf("unknown solver %q", solverName)
	}
}
