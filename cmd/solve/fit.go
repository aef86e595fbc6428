package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/descent/internal/optimization"
	"github.com/copyleftdev/descent/internal/optimization/losses"
)

var (
	dataPath  string
	lossName  string
	regName   string
	lmbda     float64
	intercept bool
	header    bool
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit a loss over a CSV dataset",
	Long: `Reads a CSV file whose last column is the target and the rest are
features, builds the chosen loss (mse, mae, crossentropy) over it and
minimizes it with the chosen solver. The fitted coefficients are
printed as JSON on stdout.`,
	RunE: runFit,
}

func init() {
	fitCmd.Flags().StringVar(&dataPath, "data", "", "CSV dataset path (required)")
	fitCmd.Flags().StringVar(&lossName, "loss", "mse", "Loss: mse, mae, crossentropy")
	fitCmd.Flags().StringVar(&regName, "reg", "none", "Regularization: none, l1, l2")
	fitCmd.Flags().Float64Var(&lmbda, "lambda", 0.1, "Regularization weight")
	fitCmd.Flags().BoolVar(&intercept, "intercept", false, "Prepend a constant feature column")
	fitCmd.Flags().BoolVar(&header, "header", false, "Skip the first CSV row")
	fitCmd.Flags().StringVar(&solverName, "solver", "steepest", "Solver: steepest, accelgrad, bundle")
	fitCmd.Flags().Float64Var(&eps, "eps", 1e-6, "Stopping tolerance (negative for relative)")
	fitCmd.Flags().IntVar(&maxFEval, "max-f-eval", 10000, "Evaluation budget")
	fitCmd.Flags().Float64Var(&aStart, "a-start", 1, "Initial step size")
	fitCmd.Flags().Float64Var(&m1, "m1", -1, "Sufficient-decrease parameter (unset keeps the solver default)")
	fitCmd.Flags().StringVar(&formula, "formula", "nesterov", "Accelgrad formula")
	fitCmd.Flags().BoolVar(&monotone, "monotone", false, "Monotone accelgrad variant")
	fitCmd.Flags().Float64Var(&mu, "mu", 1, "Bundle stabilization weight")

	fitCmd.MarkFlagRequired("data")
	rootCmd.AddCommand(fitCmd)
}

func runFit(cmd *cobra.Command, args []string) error {
	X, y, err := loadDataset(dataPath)
	if err != nil {
		return err
	}
	obj, err := buildLoss(X, y)
	if err != nil {
		return err
	}
	solver, err := buildSolver()
	if err != nil {
		return err
	}
	m, p := X.Dims()

	start := time.Now()
	res := solver.Minimize(obj, nil)
	elapsed := time.Since(start)

	out := map[string]interface{}{
		"solver":      solverName,
		"loss":        lossName,
		"samples":     m,
		"features":    p,
		"status":      res.Status.String(),
		"theta":       res.X,
		"f":           res.F,
		"evaluations": res.Evaluations,
		"iterations":  res.Iterations,
		"elapsed_ms":  float64(elapsed.Microseconds()) / 1000.0,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func buildLoss(X *mat.Dense, y []float64) (optimization.Objective, error) {
	reg := losses.Regularization(regName)
	switch lossName {
	case "mse":
		return losses.NewMeanSquaredError(X, y, reg, lmbda)
	case "mae":
		return losses.NewMeanAbsoluteError(X, y, reg, lmbda)
	case "crossentropy":
		return losses.NewCrossEntropy(X, y, reg, lmbda)
	default:
		return nil, fmt.Errorf("unknown loss %q", lossName)
	}
}

// loadDataset parses the CSV into a design matrix and target vector,
// treating the last column as the target.
func loadDataset(path string) (*mat.Dense, []float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	if header && len(rows) > 0 {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("dataset %s is empty", path)
	}
	cols := len(rows[0])
	if cols < 2 {
		return nil, nil, fmt.Errorf("dataset needs at least one feature column and a target column")
	}

	p := cols - 1
	if intercept {
		p++
	}
	X := mat.NewDense(len(rows), p, nil)
	y := make([]float64, len(rows))
	for i, row := range rows {
		if len(row) != cols {
			return nil, nil, fmt.Errorf("row %d has %d columns, want %d", i+1, len(row), cols)
		}
		j := 0
		if intercept {
			X.Set(i, 0, 1)
			j = 1
		}
		for k, cell := range row {
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, nil, fmt.Errorf("row %d column %d: %w", i+1, k+1, err)
			}
			if k == cols-1 {
				y[i] = v
			} else {
				X.Set(i, j, v)
				j++
			}
		}
	}
	return X, y, nil
}
