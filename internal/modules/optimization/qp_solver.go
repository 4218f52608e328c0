package optimization

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// QuadraticProblem is
//
//	minimize   ½xᵀGx + cᵀx
//	subject to Ax = b, x ≥ 0
//
// X0 must be feasible. Components of X0 equal to zero start on their bound.
type QuadraticProblem struct {
	G  mat.Symmetric
	C  []float64 // nil means zero
	A  *mat.Dense
	B  []float64
	X0 []float64
}

// Solver solves long-only quadratic programs.
type Solver interface {
	Solve(problem QuadraticProblem) ([]float64, error)
}

// ActiveSetSolver is a primal active-set method for convex QPs whose only
// inequalities are the non-negativity bounds. Each iteration solves the
// equality-constrained subproblem on the free variables through its KKT
// system.
type ActiveSetSolver struct {
	MaxIterations int
	Tolerance     float64
}

// DefaultSolverTolerance is the relative stationarity tolerance. It must stay
// above the round-off of the KKT solve for ill-conditioned covariances.
const DefaultSolverTolerance = 1e-9

const epsilon = 0x1p-52

// NewActiveSetSolver creates a solver with default limits.
func NewActiveSetSolver() *ActiveSetSolver {
	return &ActiveSetSolver{Tolerance: DefaultSolverTolerance}
}

// Solve implements Solver.
func (s *ActiveSetSolver) Solve(p QuadraticProblem) ([]float64, error) {
	n := p.G.SymmetricDim()
	m, cols := p.A.Dims()
	if cols != n || len(p.B) != m || len(p.X0) != n || (p.C != nil && len(p.C) != n) {
		return nil, fmt.Errorf("quadratic problem dimensions are inconsistent")
	}

	tol := s.Tolerance
	if tol <= 0 {
		tol = DefaultSolverTolerance
	}
	maxIter := s.MaxIterations
	if maxIter <= 0 {
		maxIter = 50*(n+m) + 100
	}

	x := make([]float64, n)
	copy(x, p.X0)
	if err := checkFeasible(p, x); err != nil {
		return nil, err
	}

	// bound[i] is true while x_i is held at zero.
	bound := make([]bool, n)
	for i, v := range x {
		if v <= 0 {
			x[i] = 0
			bound[i] = true
		}
	}

	c := p.C
	if c == nil {
		c = make([]float64, n)
	}

	g := make([]float64, n)
	released := -1
	for iter := 0; iter < maxIter; iter++ {
		gradient(p.G, c, x, g)

		free := indicesWhere(bound, false)
		step, nu, rows, err := solveKKT(p.G, p.A, g, free)
		if err != nil {
			return nil, err
		}

		if floats.Norm(step, math.Inf(1)) <= tol*(1+floats.Norm(x, math.Inf(1))) ||
			negligibleDecrease(g, c, x, step, free) {
			// Stationary on the current face: check bound multipliers
			// z_i = g_i + (A_rowsᵀν)_i.
			worst, worstZ := -1, 0.0
			scale := 1 + floats.Norm(g, math.Inf(1))
			for i := 0; i < n; i++ {
				if !bound[i] {
					continue
				}
				z := g[i]
				for k, r := range rows {
					z += p.A.At(r, i) * nu[k]
				}
				if z < -tol*scale && z < worstZ {
					worst, worstZ = i, z
				}
			}
			if worst < 0 {
				return finalize(x), nil
			}
			bound[worst] = false
			released = worst
			continue
		}

		// Longest step along the direction that keeps x ≥ 0.
		alpha, blocking := 1.0, -1
		for k, i := range free {
			if step[k] < 0 {
				if a := -x[i] / step[k]; a < alpha {
					alpha, blocking = a, i
				}
			}
		}
		if alpha < 0 {
			alpha = 0
		}
		if alpha == 0 && blocking == released {
			// The released bound blocks at once: its multiplier was noise.
			return finalize(x), nil
		}
		released = -1
		for k, i := range free {
			x[i] += alpha * step[k]
		}
		if blocking >= 0 {
			x[blocking] = 0
			bound[blocking] = true
		}
	}

	return nil, &ConvergenceError{Operation: "quadratic program", Iterations: maxIter}
}

// negligibleDecrease reports whether the full step would lower the objective
// by no more than round-off. The face-Newton step satisfies gᵀp = -pᵀGp.
func negligibleDecrease(g, c, x, step []float64, free []int) bool {
	if len(free) == 0 {
		return true
	}
	decrease := 0.0
	for k, i := range free {
		decrease -= g[i] * step[k]
	}
	// ½xᵀGx + cᵀx = ½(gᵀx + cᵀx)
	objective := 0.5 * (floats.Dot(g, x) + floats.Dot(c, x))
	scale := math.Abs(objective) + math.Abs(floats.Dot(g, x))
	return decrease <= 64*epsilon*scale
}

func checkFeasible(p QuadraticProblem, x []float64) error {
	m, n := p.A.Dims()
	scale := 1 + floats.Norm(x, math.Inf(1))
	for i := 0; i < n; i++ {
		if x[i] < -1e-12*scale || math.IsNaN(x[i]) {
			return fmt.Errorf("starting point violates the non-negativity bound at %d", i)
		}
	}
	for r := 0; r < m; r++ {
		row := mat.Row(nil, r, p.A)
		if math.Abs(floats.Dot(row, x)-p.B[r]) > 1e-8*(1+math.Abs(p.B[r])) {
			return fmt.Errorf("starting point violates equality constraint %d", r)
		}
	}
	return nil
}

func gradient(g mat.Symmetric, c, x, out []float64) {
	n := len(x)
	for i := 0; i < n; i++ {
		v := c[i]
		for j := 0; j < n; j++ {
			v += g.At(i, j) * x[j]
		}
		out[i] = v
	}
}

func indicesWhere(flags []bool, want bool) []int {
	var out []int
	for i, f := range flags {
		if f == want {
			out = append(out, i)
		}
	}
	return out
}

// solveKKT solves
//
//	[G_FF  A_Fᵀ][p]   [-g_F]
//	[A_F   0   ][ν] = [ 0  ]
//
// on the free set F. Equality rows that are linearly dependent once
// restricted to F are dropped; rows reports which rows ν belongs to.
func solveKKT(g mat.Symmetric, a *mat.Dense, grad []float64, free []int) (step, nu []float64, rows []int, err error) {
	nf := len(free)
	rows = independentRows(a, free)
	r := len(rows)
	if nf == 0 {
		return []float64{}, make([]float64, r), rows, nil
	}

	size := nf + r
	kkt := mat.NewDense(size, size, nil)
	rhs := mat.NewVecDense(size, nil)
	for ii, i := range free {
		for jj, j := range free {
			kkt.Set(ii, jj, g.At(i, j))
		}
		for k, row := range rows {
			v := a.At(row, i)
			kkt.Set(ii, nf+k, v)
			kkt.Set(nf+k, ii, v)
		}
		rhs.SetVec(ii, -grad[i])
	}

	var sol mat.VecDense
	if err := sol.SolveVec(kkt, rhs); err != nil {
		return nil, nil, nil, &SingularMatrixError{Matrix: "kkt", Err: err}
	}

	step = make([]float64, nf)
	for k := range step {
		step[k] = sol.AtVec(k)
	}
	nu = make([]float64, r)
	for k := range nu {
		nu[k] = sol.AtVec(nf + k)
	}
	for _, v := range step {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, nil, nil, &SingularMatrixError{Matrix: "kkt"}
		}
	}
	return step, nu, rows, nil
}

// independentRows selects a maximal set of linearly independent rows of A
// restricted to the given columns, by Gram-Schmidt with a relative tolerance.
func independentRows(a *mat.Dense, cols []int) []int {
	m, _ := a.Dims()
	var kept []int
	var basis [][]float64
	for r := 0; r < m; r++ {
		v := make([]float64, len(cols))
		for k, c := range cols {
			v[k] = a.At(r, c)
		}
		norm0 := floats.Norm(v, 2)
		if norm0 == 0 {
			continue
		}
		for _, b := range basis {
			floats.AddScaled(v, -floats.Dot(v, b), b)
		}
		norm := floats.Norm(v, 2)
		if norm <= 1e-10*norm0 {
			continue
		}
		floats.Scale(1/norm, v)
		basis = append(basis, v)
		kept = append(kept, r)
	}
	return kept
}

func finalize(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if v > 0 {
			out[i] = v
		}
	}
	return out
}
