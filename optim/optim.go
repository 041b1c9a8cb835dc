// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package optim orchestrates evalF/evalG across the initial-condition
// ensemble: forward sweeps into the terminal cost, reverse sweeps into the
// θ-gradient, and the running regulariser / leakage / pulse-energy
// penalties layered on top (§4.7 OptimProblem).
package optim

import (
	"github.com/cpmech/gosl/chk"
	"github.com/quandary-go/quandary/control"
	"github.com/quandary-go/quandary/idx"
	"github.com/quandary-go/quandary/osc"
	"github.com/quandary-go/quandary/runtime"
	"github.com/quandary-go/quandary/stepper"
	"github.com/quandary-go/quandary/target"
	"gonum.org/v1/gonum/floats"
)

// Weights collects the configuration-supplied regularisation/penalty
// scalars (§4.7, §6 optim_weights).
type Weights struct {
	GammaControl float64 // 1/2*gammaControl*||theta||^2
	GammaVar     float64 // gammaVar * sum of ComputeVariation over BSpline0 bases
	GammaLeak    float64 // running guard-subspace leakage penalty
	GammaEnergy  float64 // pulse-energy penalty
}

// Problem bundles everything evalF/evalG need: the oscillator ensemble (for
// θ-layout and pulse-energy), the shared stepper, the terminal-cost target,
// the penalty weights, and this process's runtime context.
type Problem struct {
	Oscs    []*osc.Oscillator
	LM      *idx.LevelMap
	Step    *stepper.Stepper
	Tgt     *target.OptimTarget
	W       Weights
	Ctx     runtime.Context
	NParams int

	cache *evalCache
}

// evalCache holds the last forward evaluation so EvalG can reuse its
// trajectories instead of re-running EvalF (§4.7 evalG step 1).
type evalCache struct {
	theta     []float64
	checkpnts [][][]float64 // checkpnts[local i] = ForwardSweep checkpoints for local initial condition i
	xFinal    [][]float64
	localIdx  []int
	f         float64
}

// New constructs a Problem, laying the oscillators' control bases
// contiguously into the flat θ vector (§3 "carrier outer, coefficient
// inner" ordering) and recording the total parameter count.
func New(oscs []*osc.Oscillator, lm *idx.LevelMap, st *stepper.Stepper, tgt *target.OptimTarget, w Weights, ctx runtime.Context) *Problem {
	n := 0
	for _, o := range oscs {
		n = o.AssignSkips(n)
	}
	st.Cfg.StoreForward = true // the reverse sweep needs every macro-step checkpoint
	return &Problem{Oscs: oscs, LM: lm, Step: st, Tgt: tgt, W: w, Ctx: ctx, NParams: n}
}

// sameTheta reports whether theta matches the cached evaluation's θ.
func sameTheta(cache *evalCache, theta []float64) bool {
	if cache == nil || len(cache.theta) != len(theta) {
		return false
	}
	for i := range theta {
		if cache.theta[i] != theta[i] {
			return false
		}
	}
	return true
}

// forwardAll runs the forward sweep for every initial condition owned by
// this rank, storing checkpoints for the later reverse sweep (§4.7 evalF
// steps 1-2, "Push θ into oscillators" is a no-op here since θ flows as an
// explicit argument through Stepper/Generator rather than mutating
// oscillator state).
func (p *Problem) forwardAll(theta []float64) *evalCache {
	ninit := p.Tgt.NumInitialConditions()
	localIdx := p.Ctx.Stripe(ninit)
	cache := &evalCache{theta: append([]float64(nil), theta...), localIdx: localIdx}
	cache.checkpnts = make([][][]float64, len(localIdx))
	cache.xFinal = make([][]float64, len(localIdx))

	var jSum float64
	var leakSum float64
	ntime := p.Step.Cfg.Ntime
	for li, i := range localIdx {
		x0 := p.Tgt.PrepareInitialState(i)
		p.Tgt.PrepareTargetState(x0)
		checkpoints, err := p.Step.ForwardSweep(x0, theta, nil)
		if err != nil {
			if _, ok := err.(*stepper.NonConvergence); !ok {
				chk.Panic("optim: forward sweep failed for initial condition %d: %v", i, err)
			}
		}
		cache.checkpnts[li] = checkpoints
		xFinal := checkpoints[ntime]
		cache.xFinal[li] = xFinal

		jRe, jIm := p.Tgt.EvalJ(xFinal)
		jSum += p.Tgt.FinalizeJ(jRe, jIm)

		for n := 0; n < ntime; n++ {
			leakSum += p.leakagePerStep(checkpoints[n])
		}
	}

	var f float64
	if ninit > 0 {
		f = jSum / float64(ninit)
	}
	if ntime > 0 {
		f += (p.W.GammaLeak / float64(ntime)) * leakSum
	}
	if p.Ctx.IsRoot() {
		f += p.regularization(theta)
		f += p.pulseEnergy(theta)
	}
	cache.f = f
	return cache
}

// EvalF evaluates the scalar objective at θ (§4.7 evalF). Cross-rank
// reduction of the per-initial-condition sums is the responsibility of the
// caller once more than one process is configured (see runtime.Context);
// for a single process this already is the final value.
func (p *Problem) EvalF(theta []float64) float64 {
	if !sameTheta(p.cache, theta) {
		p.cache = p.forwardAll(theta)
	}
	return p.cache.f
}

// EvalG evaluates the scalar objective and accumulates ∂F/∂θ into gBar
// (§4.7 evalG), reusing the cached forward trajectories when θ has not
// changed since the last EvalF/EvalG call.
func (p *Problem) EvalG(theta []float64, gBar []float64) float64 {
	if !sameTheta(p.cache, theta) {
		p.cache = p.forwardAll(theta)
	}
	for i := range gBar {
		gBar[i] = 0
	}
	ninit := p.Tgt.NumInitialConditions()
	ntime := p.Step.Cfg.Ntime
	leakScale := p.W.GammaLeak
	if ntime > 0 {
		leakScale /= float64(ntime)
	}

	for li := range p.cache.localIdx {
		checkpoints := p.cache.checkpnts[li]
		xFinal := p.cache.xFinal[li]
		xBarFinal := p.Tgt.EvalJDiff(xFinal)
		if ninit > 0 {
			floats.Scale(1/float64(ninit), xBarFinal)
		}
		localG := make([]float64, len(gBar))
		p.Step.ReverseSweep(checkpoints, theta, xBarFinal, localG,
			func(n int, x, xBar []float64) {
				p.addLeakageGradient(x, xBar, leakScale)
			})
		floats.Add(gBar, localG)
	}

	if p.Ctx.IsRoot() {
		p.regularizationDiff(theta, gBar)
		p.pulseEnergyDiff(theta, gBar)
	}
	return p.cache.f
}

// leakagePerStep returns Σ_{i in guard} |x_i|^2 (Schrödinger) or Σ ρ_ii
// (Lindblad) for one trajectory state (§4.7 evalF step 4).
func (p *Problem) leakagePerStep(x []float64) float64 {
	var s float64
	if p.Tgt.Mode == target.Lindblad {
		n := p.LM.N
		for _, full := range p.LM.GuardIndices() {
			s += x[2*(full*n+full)]
		}
		return s
	}
	for _, full := range p.LM.GuardIndices() {
		re, im := x[2*full], x[2*full+1]
		s += re*re + im*im
	}
	return s
}

// addLeakageGradient adds ∂P_leak/∂x(t_n) (scaled by scale = γ_leak/N_time)
// directly into the running adjoint state xBar, exploiting that the
// stepper's reverse sweep passes xBar by reference to this hook.
func (p *Problem) addLeakageGradient(x, xBar []float64, scale float64) {
	if p.Tgt.Mode == target.Lindblad {
		n := p.LM.N
		for _, full := range p.LM.GuardIndices() {
			xBar[2*(full*n+full)] += scale
		}
		return
	}
	for _, full := range p.LM.GuardIndices() {
		xBar[2*full] += 2 * scale * x[2*full]
		xBar[2*full+1] += 2 * scale * x[2*full+1]
	}
}

// regularization returns R(θ) = γ_control·½‖θ‖² + γ_var·Σ ComputeVariation
// over every BSpline0 basis (§4.7 evalF step 3).
func (p *Problem) regularization(theta []float64) float64 {
	r := 0.5 * p.W.GammaControl * floats.Dot(theta, theta)
	for _, o := range p.Oscs {
		for _, segs := range o.Bases {
			for _, b := range segs {
				if b.Kind == control.BSpline0 {
					r += p.W.GammaVar * b.ComputeVariation(theta)
				}
			}
		}
	}
	return r
}

func (p *Problem) regularizationDiff(theta, gBar []float64) {
	for i, t := range theta {
		gBar[i] += p.W.GammaControl * t
	}
	for _, o := range p.Oscs {
		for _, segs := range o.Bases {
			for _, b := range segs {
				if b.Kind == control.BSpline0 {
					b.ComputeVariationDiff(theta, gBar, p.W.GammaVar)
				}
			}
		}
	}
}

// pulseEnergy returns γ_E·Σ_q,c ∫|p_q,c(t)|²+|q_q,c(t)|² dt, integrated by
// the trapezoid rule over the stepper's macro-step grid (§4.7 evalF step 5).
func (p *Problem) pulseEnergy(theta []float64) float64 {
	return p.W.GammaEnergy * p.integrateEnvelope(theta, nil, 0)
}

func (p *Problem) pulseEnergyDiff(theta, gBar []float64) {
	p.integrateEnvelope(theta, gBar, p.W.GammaEnergy)
}

// integrateEnvelope sums Σ_q,c ∫|p|²+|q|² dt over the oscillators' raw
// (un-rotated) carrier envelopes on the stepper's time grid. When gBar is
// non-nil it instead accumulates seed·∂(...)/∂θ into gBar and returns 0.
func (p *Problem) integrateEnvelope(theta, gBar []float64, seed float64) float64 {
	dt := p.Step.Cfg.Dt
	ntime := p.Step.Cfg.Ntime
	var total float64
	for n := 0; n <= ntime; n++ {
		t := float64(n) * dt
		w := dt
		if n == 0 || n == ntime {
			w = dt / 2
		}
		for _, o := range p.Oscs {
			for c := range o.Carriers {
				var pSum, qSum float64
				for _, b := range o.Bases[c] {
					pb, qb := b.Evaluate(t, theta)
					pSum += pb
					qSum += qb
				}
				if gBar == nil {
					total += w * (pSum*pSum + qSum*qSum)
				} else {
					pBar := 2 * seed * w * pSum
					qBar := 2 * seed * w * qSum
					for _, b := range o.Bases[c] {
						if err := b.Derivative(t, gBar, pBar, qBar); err != nil {
							chk.Panic("optim: pulse-energy gradient: %v", err)
						}
					}
				}
			}
		}
	}
	return total
}
