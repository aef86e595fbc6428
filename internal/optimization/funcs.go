package optimization

import "math"

// Sphere is the objective f(x) = ||x||^2 with known minimizer at the
// origin. It is the standard smoke-test objective for the solvers.
type Sphere struct {
	// Dim is the dimension of the domain.
	Dim int
}

func (s Sphere) Function(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum
}

func (s Sphere) Jacobian(x []float64) []float64 {
	g := make([]float64, len(x))
	for i, v := range x {
		g[i] = 2 * v
	}
	return g
}

// Start returns the all-ones vector.
func (s Sphere) Start() []float64 {
	x := make([]float64, s.Dim)
	for i := range x {
		x[i] = 1
	}
	return x
}

func (s Sphere) FStar() float64 { return 0 }

func (s Sphere) XStar() []float64 { return make([]float64, s.Dim) }

// Rosenbrock is the two-dimensional Rosenbrock valley
// f(x) = 100 (x1 - x0^2)^2 + (1 - x0)^2, minimized at (1, 1).
type Rosenbrock struct{}

func (Rosenbrock) Function(x []float64) float64 {
	a := x[1] - x[0]*x[0]
	b := 1 - x[0]
	return 100*a*a + b*b
}

func (Rosenbrock) Jacobian(x []float64) []float64 {
	a := x[1] - x[0]*x[0]
	return []float64{
		-400*a*x[0] - 2*(1-x[0]),
		200 * a,
	}
}

// Start returns the classical (-1.2, 1) starting point.
func (Rosenbrock) Start() []float64 { return []float64{-1.2, 1} }

func (Rosenbrock) FStar() float64 { return 0 }

func (Rosenbrock) XStar() []float64 { return []float64{1, 1} }

// AbsSum is the non-smooth objective f(x) = sum_i |x_i|, minimized at the
// origin. Jacobian returns a subgradient (sign vector, with 0 mapped to
// +1 so the result is always a valid subgradient). Used to exercise the
// bundle method on a genuinely non-differentiable function.
type AbsSum struct {
	Dim int
}

func (a AbsSum) Function(x []float64) float64 {
	sum := 0.0
	for _, v := range x {
		sum += math.Abs(v)
	}
	return sum
}

func (a AbsSum) Jacobian(x []float64) []float64 {
	g := make([]float64, len(x))
	for i, v := range x {
		if v < 0 {
			g[i] = -1
		} else {
			g[i] = 1
		}
	}
	return g
}

func (a AbsSum) Start() []float64 {
	x := make([]float64, a.Dim)
	for i := range x {
		x[i] = 1
	}
	return x
}

func (a AbsSum) FStar() float64 { return 0 }

func (a AbsSum) XStar() []float64 { return make([]float64, a.Dim) }
