// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package stepper implements the implicit-midpoint time integrator with a
// Krylov (GMRES) or truncated-Neumann linear solve, its compositional
// order-4/order-8 wrapper, and the forward/reverse sweeps that drive the
// objective and adjoint-gradient pipeline (§4.5 TimeStepper). Grounded on
// gofem/fem/dyncoefs.go's derivation of implicit-integration coefficients
// and fem/solver.go's Run(tf, dtFunc, ...) forward-sweep driver shape.
package stepper

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/quandary-go/quandary/liouville"
)

// LinSolveKind selects the per-step linear solver (§4.5, §6 linearsolver_type).
type LinSolveKind int

const (
	GMRES LinSolveKind = iota
	Neumann
)

// CompositionOrder selects the IMR compositional wrapper (§4.5, §6 timestepper).
type CompositionOrder int

const (
	Order2 CompositionOrder = iota // plain implicit midpoint
	Order4                         // Yoshida triple composition
	Order8                         // 15-stage palindromic eighth-order composition
)

// Config collects the stepper's tunables.
type Config struct {
	Dt           float64
	Ntime        int
	LinSolver    LinSolveKind
	MaxIter      int
	Tol          float64
	Order        CompositionOrder
	StoreForward bool
}

// NonConvergence reports a linear solve that failed to reach Tol within
// MaxIter (§7 SolverNonConvergence — non-fatal; the step proceeds with the
// best-effort iterate).
type NonConvergence struct {
	Step     int
	Residual float64
}

func (e *NonConvergence) Error() string {
	return chk.Err("stepper: linear solver did not converge at step %d (residual %g)", e.Step, e.Residual).Error()
}

// Diagnostics accumulates non-fatal warnings across a sweep (§7).
type Diagnostics struct {
	NonConvergences int
}

// Stepper advances the real-doubled state under a liouville.Generator.
type Stepper struct {
	Gen *liouville.Generator
	Cfg Config

	Diag Diagnostics
}

// New constructs a Stepper for the given generator and configuration.
func New(gen *liouville.Generator, cfg Config) *Stepper {
	if cfg.Dt <= 0 {
		chk.Panic("stepper: Dt must be positive (got %g)", cfg.Dt)
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = 50
	}
	if cfg.Tol <= 0 {
		cfg.Tol = 1e-10
	}
	return &Stepper{Gen: gen, Cfg: cfg}
}

// subStep is one elementary implicit-midpoint call within a (possibly
// composed) macro step: advance by dt starting at time t0.
type subStep struct {
	t0, dt float64
}

// substepPlan expands the compositional wrapper into its ordered list of
// elementary IMR sub-steps (§4.5 "Composition for higher order").
func substepPlan(order CompositionOrder, t0, dt float64) []subStep {
	switch order {
	case Order2:
		return []subStep{{t0, dt}}
	case Order4:
		return order4Plan(t0, dt)
	case Order8:
		return order8Plan(t0, dt)
	default:
		chk.Panic("stepper: unknown composition order %d", order)
		return nil
	}
}

// order4Plan is the Yoshida triple composition: γ1 = 1/(2−2^{1/3}),
// γ0 = 1−2γ1, applied as γ1, γ0, γ1 (palindromic, §4.5).
func order4Plan(t0, dt float64) []subStep {
	gamma1 := 1.0 / (2.0 - math.Cbrt(2.0))
	gamma0 := 1.0 - 2.0*gamma1
	d1, d0 := gamma1*dt, gamma0*dt
	return []subStep{
		{t0, d1},
		{t0 + d1, d0},
		{t0 + d1 + d0, d1},
	}
}

// order8Plan is the palindromic 15-stage eighth-order composition
// γ1..γ7, γ8, γ7..γ1 (15 elementary IMR calls, §4.5).
func order8Plan(t0, dt float64) []subStep {
	g := []float64{0.74167036435061295, -0.40910082580003159, 0.19075471029623838, -0.57386247111608227,
		0.29906418130365592, 0.33462491824529818, 0.31529309239676660, -0.79688793935291635}
	var plan []subStep
	cur := t0
	for i := 0; i < 15; i++ {
		j := i
		if i > 7 {
			j = 14 - i
		}
		sub := g[j] * dt
		plan = append(plan, subStep{cur, sub})
		cur += sub
	}
	return plan
}

// linOperatorApply applies A(v) = v - coeff*M(tmid,θ)v, the implicit-
// midpoint system matrix (§4.5).
func (s *Stepper) linOperatorApply(tmid float64, theta []float64, coeff float64, v, out []float64) error {
	mv := make([]float64, len(v))
	if err := s.Gen.Apply(tmid, theta, v, mv); err != nil {
		return err
	}
	for i := range out {
		out[i] = v[i] - coeff*mv[i]
	}
	return nil
}

// linOperatorApplyTranspose applies Aᵀ(v) = v - coeff*Mᵀ(tmid,θ)v.
func (s *Stepper) linOperatorApplyTranspose(tmid float64, theta []float64, coeff float64, v, out []float64) error {
	mtv := make([]float64, len(v))
	if err := s.Gen.ApplyTranspose(tmid, theta, v, mtv); err != nil {
		return err
	}
	for i := range out {
		out[i] = v[i] - coeff*mtv[i]
	}
	return nil
}

// solveNeumann approximates (I-coeff*M)^{-1} b by the truncated series
// Σ_{j=0}^{K} (coeff*M)^j b — exact for small dt·‖M‖ (§4.5).
func (s *Stepper) solveNeumann(tmid float64, theta []float64, coeff float64, b []float64, transpose bool) (y []float64, residual float64) {
	n := len(b)
	y = append([]float64(nil), b...)
	term := append([]float64(nil), b...)
	apply := s.Gen.Apply
	if transpose {
		apply = s.Gen.ApplyTranspose
	}
	for j := 1; j <= s.Cfg.MaxIter; j++ {
		mterm := make([]float64, n)
		if err := apply(tmid, theta, term, mterm); err != nil {
			chk.Panic("stepper: Neumann series apply failed: %v", err)
		}
		for i := range term {
			term[i] = coeff * mterm[i]
			y[i] += term[i]
		}
	}
	var op []float64
	if transpose {
		op = make([]float64, n)
		s.linOperatorApplyTranspose(tmid, theta, coeff, y, op)
	} else {
		op = make([]float64, n)
		s.linOperatorApply(tmid, theta, coeff, y, op)
	}
	for i := range op {
		d := op[i] - b[i]
		residual += d * d
	}
	return y, math.Sqrt(residual)
}

// solveGMRES is a matrix-free GMRES (no preconditioner, no restart: one
// Arnoldi cycle of at most min(MaxIter, n) iterations) against the
// implicit-midpoint system, hand-written because no pack dependency
// exercises small dense/sparse Krylov solves (see DESIGN.md stdlib
// justification for this package).
func (s *Stepper) solveGMRES(tmid float64, theta []float64, coeff float64, b []float64, transpose bool) (y []float64, residual float64) {
	n := len(b)
	apply := func(v, out []float64) {
		var err error
		if transpose {
			err = s.linOperatorApplyTranspose(tmid, theta, coeff, v, out)
		} else {
			err = s.linOperatorApply(tmid, theta, coeff, v, out)
		}
		if err != nil {
			chk.Panic("stepper: GMRES apply failed: %v", err)
		}
	}

	y = make([]float64, n)
	maxIter := s.Cfg.MaxIter
	if maxIter > n {
		maxIter = n
	}
	if maxIter < 1 {
		maxIter = 1
	}

	r0 := append([]float64(nil), b...)
	ay := make([]float64, n)
	apply(y, ay)
	for i := range r0 {
		r0[i] -= ay[i]
	}
	beta := norm2(r0)
	if beta < s.Cfg.Tol {
		return y, beta
	}

	vMat := make([][]float64, maxIter+1)
	vMat[0] = scaleVec(r0, 1.0/beta)
	hMat := make([][]float64, maxIter+1)
	for i := range hMat {
		hMat[i] = make([]float64, maxIter)
	}
	cs := make([]float64, maxIter)
	sn := make([]float64, maxIter)
	g := make([]float64, maxIter+1)
	g[0] = beta

	var k int
	for k = 0; k < maxIter; k++ {
		w := make([]float64, n)
		apply(vMat[k], w)
		for i := 0; i <= k; i++ {
			hMat[i][k] = dot(w, vMat[i])
			for idx := range w {
				w[idx] -= hMat[i][k] * vMat[i][idx]
			}
		}
		hMat[k+1][k] = norm2(w)
		if hMat[k+1][k] > 1e-300 {
			vMat[k+1] = scaleVec(w, 1.0/hMat[k+1][k])
		} else {
			vMat[k+1] = make([]float64, n)
		}
		for i := 0; i < k; i++ {
			applyGivens(hMat, k, i, cs[i], sn[i])
		}
		cs[k], sn[k] = givensCoeffs(hMat[k][k], hMat[k+1][k])
		hMat[k][k] = cs[k]*hMat[k][k] + sn[k]*hMat[k+1][k]
		hMat[k+1][k] = 0
		g[k+1] = -sn[k] * g[k]
		g[k] = cs[k] * g[k]
		residual = math.Abs(g[k+1])
		if residual < s.Cfg.Tol {
			k++
			break
		}
	}
	if k == 0 {
		return y, beta
	}

	z := make([]float64, k)
	for i := k - 1; i >= 0; i-- {
		sum := g[i]
		for j := i + 1; j < k; j++ {
			sum -= hMat[i][j] * z[j]
		}
		z[i] = sum / hMat[i][i]
	}
	for i := 0; i < k; i++ {
		for idx := range y {
			y[idx] += z[i] * vMat[i][idx]
		}
	}
	return y, residual
}

func givensCoeffs(a, b float64) (c, s float64) {
	if b == 0 {
		return 1, 0
	}
	den := math.Hypot(a, b)
	return a / den, b / den
}

func applyGivens(hMat [][]float64, k, i int, c, s float64) {
	tmp := c*hMat[i][k] + s*hMat[i+1][k]
	hMat[i+1][k] = -s*hMat[i][k] + c*hMat[i+1][k]
	hMat[i][k] = tmp
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func norm2(a []float64) float64 { return math.Sqrt(dot(a, a)) }

func scaleVec(a []float64, s float64) []float64 {
	out := make([]float64, len(a))
	for i := range a {
		out[i] = a[i] * s
	}
	return out
}

// linSolve dispatches to the configured solver.
func (s *Stepper) linSolve(tmid float64, theta []float64, coeff float64, b []float64, transpose bool) (y []float64, residual float64) {
	switch s.Cfg.LinSolver {
	case Neumann:
		return s.solveNeumann(tmid, theta, coeff, b, transpose)
	default:
		return s.solveGMRES(tmid, theta, coeff, b, transpose)
	}
}

// imrSingle advances one elementary implicit-midpoint step: solve
// (I − (dt/2)M(tmid,θ))k = M(tmid,θ)x, then x_next = x + dt·k (§4.5).
func (s *Stepper) imrSingle(step int, t0, dt float64, x, theta []float64) (xNext []float64, err error) {
	tmid := t0 + dt/2
	rhs := make([]float64, len(x))
	if perr := s.Gen.Apply(tmid, theta, x, rhs); perr != nil {
		return nil, perr
	}
	k, residual := s.linSolve(tmid, theta, dt/2, rhs, false)
	if residual > s.Cfg.Tol {
		s.Diag.NonConvergences++
		err = &NonConvergence{Step: step, Residual: residual}
	}
	xNext = make([]float64, len(x))
	for i := range x {
		xNext[i] = x[i] + dt*k[i]
	}
	return xNext, err
}

// Step advances x by one (possibly composed) macro step of size dt
// starting at t0, returning the new state.
func (s *Stepper) Step(step int, t0 float64, x, theta []float64) (xNext []float64, err error) {
	plan := substepPlan(s.Cfg.Order, t0, s.Cfg.Dt)
	cur := x
	for _, sub := range plan {
		next, serr := s.imrSingle(step, sub.t0, sub.dt, cur, theta)
		if serr != nil {
			err = serr
		}
		cur = next
	}
	return cur, err
}

// ForwardSweep runs Ntime macro steps from x0, invoking hook(n, t, x) after
// each step and appending to the checkpoint list when storeForward holds
// (§4.5 "Forward sweep"). Checkpoints are stored at macro-step granularity;
// the reverse sweep replays sub-step-internal states from these via
// imrSingle, matching the "recover from checkpoint or recompute" option
// named in §4.5.
func (s *Stepper) ForwardSweep(x0, theta []float64, hook func(n int, t float64, x []float64)) (checkpoints [][]float64, err error) {
	x := append([]float64(nil), x0...)
	if s.Cfg.StoreForward {
		checkpoints = make([][]float64, 0, s.Cfg.Ntime+1)
		checkpoints = append(checkpoints, append([]float64(nil), x...))
	}
	t := 0.0
	for n := 0; n < s.Cfg.Ntime; n++ {
		xNext, serr := s.Step(n, t, x, theta)
		if serr != nil {
			err = serr
		}
		x = xNext
		t += s.Cfg.Dt
		if hook != nil {
			hook(n, t, x)
		}
		if s.Cfg.StoreForward {
			checkpoints = append(checkpoints, append([]float64(nil), x...))
		}
	}
	return checkpoints, err
}

// ReverseSweep runs the discrete adjoint from xBarFinal back to t=0,
// accumulating ∂J/∂θ into gBar (§4.5 "Reverse sweep"). checkpoints must be
// the macro-step trajectory produced by ForwardSweep with StoreForward set
// (required for Lindblad; for reversible Schrödinger dynamics the same
// checkpoints may instead be recomputed by a second forward sweep, at the
// caller's choice).
func (s *Stepper) ReverseSweep(checkpoints [][]float64, theta []float64, xBarFinal []float64, gBar []float64, leakageHook func(n int, x, xBar []float64)) []float64 {
	xBar := append([]float64(nil), xBarFinal...)
	for n := s.Cfg.Ntime - 1; n >= 0; n-- {
		t0 := float64(n) * s.Cfg.Dt
		xn := checkpoints[n]
		plan := substepPlan(s.Cfg.Order, t0, s.Cfg.Dt)
		// replay forward through the macro step's sub-steps to recover each
		// sub-step's starting state, then reverse them in the opposite order
		xs := make([][]float64, len(plan)+1)
		xs[0] = xn
		for i, sub := range plan {
			next, _ := s.imrSingle(n, sub.t0, sub.dt, xs[i], theta)
			xs[i+1] = next
		}
		for i := len(plan) - 1; i >= 0; i-- {
			xBar = s.reverseSubstep(n, plan[i], xs[i], xBar, theta, gBar)
		}
		if leakageHook != nil {
			leakageHook(n, xn, xBar)
		}
	}
	return xBar
}

// reverseSubstep implements §4.5 "Reverse sweep" steps 1-4 for one
// elementary IMR sub-step starting at xStart: recompute k (step 1), solve
// the transposed linear system for μ (step 2), close xBar (step 3), and
// accumulate the θ-gradient contribution via Generator.ApplyDiff (step 4).
func (s *Stepper) reverseSubstep(step int, sub subStep, xStart, xBarNext, theta, gBar []float64) (xBarThis []float64) {
	tmid := sub.t0 + sub.dt/2
	rhs := make([]float64, len(xStart))
	if err := s.Gen.Apply(tmid, theta, xStart, rhs); err != nil {
		chk.Panic("stepper: reverse recompute failed: %v", err)
	}
	k, _ := s.linSolve(tmid, theta, sub.dt/2, rhs, false)

	mu, residual := s.linSolve(tmid, theta, sub.dt/2, xBarNext, true)
	if residual > s.Cfg.Tol {
		s.Diag.NonConvergences++
	}

	mtMu := make([]float64, len(mu))
	if err := s.Gen.ApplyTranspose(tmid, theta, mu, mtMu); err != nil {
		chk.Panic("stepper: reverse close failed: %v", err)
	}
	xBarThis = make([]float64, len(xBarNext))
	for i := range xBarThis {
		xBarThis[i] = xBarNext[i] + sub.dt*mtMu[i]
	}

	xMid := make([]float64, len(xStart))
	for i := range xMid {
		xMid[i] = xStart[i] + sub.dt*k[i]/2
	}
	delta := make([]float64, len(gBar))
	if err := s.Gen.ApplyDiff(tmid, theta, xMid, mu, delta); err != nil {
		chk.Panic("stepper: reverse gradient accumulation failed: %v", err)
	}
	for i := range gBar {
		gBar[i] += sub.dt * delta[i]
	}
	return xBarThis
}
