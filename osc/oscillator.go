// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package osc implements the per-oscillator bundle of carriers and control
// bases (§4.2 Oscillator).
package osc

import (
	"math"

	"github.com/cpmech/gosl/chk"
	"github.com/quandary-go/quandary/control"
	"gonum.org/v1/gonum/mat"
)

// PiPulse overrides the regular control evaluation with a constant
// amplitude during [TStart, TStop] (§4.2, §6 apply_pipulse). While any
// oscillator's pulse window is active, every other oscillator is forced to
// zero in the same window.
type PiPulse struct {
	TStart, TStop float64
	AmpP, AmpQ    float64
}

// Oscillator is one modelled anharmonic mode: its level count, transition
// and rotation frequencies, decoherence times, carriers and their bases.
type Oscillator struct {
	Nlevels    int
	TransFreq  float64
	RotFreq    float64
	SelfKerr   float64
	DecayTime  float64 // T1; 0 means no decay channel
	DephaseTime float64 // T2; 0 means no dephasing channel

	Carriers []float64        // carrier frequencies f_c
	Bases    [][]*control.Basis // Bases[c] is the list of time-segment bases for carrier c
	PiPulses []PiPulse
}

// NParams is the number of θ-entries this oscillator consumes across all of
// its carriers and bases.
func (o *Oscillator) NParams() int {
	n := 0
	for _, segs := range o.Bases {
		for _, b := range segs {
			n += b.Nparams
		}
	}
	return n
}

// AssignSkips lays the oscillator's bases contiguously starting at offset,
// matching the §3 ordering (carrier outer, basis-coefficient inner), and
// returns the offset past the last basis.
func (o *Oscillator) AssignSkips(offset int) int {
	for _, segs := range o.Bases {
		for _, b := range segs {
			b.Skip = offset
			offset += b.Nparams
		}
	}
	return offset
}

// activePiPulse returns the pulse active at time t, if any.
func (o *Oscillator) activePiPulse(t float64) (PiPulse, bool) {
	for _, pp := range o.PiPulses {
		if t >= pp.TStart && t <= pp.TStop {
			return pp, true
		}
	}
	return PiPulse{}, false
}

// InPiPulseWindow reports whether any of this oscillator's own pulses are
// active at t; used by siblings to know they must force zero output.
func (o *Oscillator) InPiPulseWindow(t float64) bool {
	_, ok := o.activePiPulse(t)
	return ok
}

// EvalControl returns (f(t), g(t)), the carrier-modulated in-phase and
// quadrature drive signals (§4.2):
//
//	f = Σ_c [p_c(t)·cos(f_c·t) − q_c(t)·sin(f_c·t)]
//	g = Σ_c [p_c(t)·sin(f_c·t) + q_c(t)·cos(f_c·t)]
func (o *Oscillator) EvalControl(t float64, theta []float64, suppressed bool) (f, g float64) {
	if pp, ok := o.activePiPulse(t); ok {
		return pp.AmpP, pp.AmpQ
	}
	if suppressed {
		return 0, 0
	}
	for c, fc := range o.Carriers {
		var p, q float64
		for _, b := range o.Bases[c] {
			pb, qb := b.Evaluate(t, theta)
			p += pb
			q += qb
		}
		cos, sin := math.Cos(fc*t), math.Sin(fc*t)
		f += p*cos - q*sin
		g += p*sin + q*cos
	}
	return
}

// EvalEnvelope returns (p(t), q(t)), the raw (un-modulated) in-phase and
// quadrature envelope summed over every carrier and basis (§6 "Output
// files" control<q>.dat columns), as distinct from EvalControl's
// carrier-modulated f(t)/g(t).
func (o *Oscillator) EvalEnvelope(t float64, theta []float64) (p, q float64) {
	if pp, ok := o.activePiPulse(t); ok {
		return pp.AmpP, pp.AmpQ
	}
	for c := range o.Carriers {
		for _, b := range o.Bases[c] {
			pb, qb := b.Evaluate(t, theta)
			p += pb
			q += qb
		}
	}
	return
}

// EvalControlDiff seeds each carrier's ControlBasis.Derivative with the
// carrier-rotated adjoints (§4.2).
func (o *Oscillator) EvalControlDiff(t float64, theta, coeffDiff []float64, fBar, gBar float64) error {
	if _, ok := o.activePiPulse(t); ok {
		return nil // pi-pulse amplitudes are not optimised
	}
	for c, fc := range o.Carriers {
		cos, sin := math.Cos(fc*t), math.Sin(fc*t)
		pBar := fBar*cos + gBar*sin
		qBar := -fBar*sin + gBar*cos
		for _, b := range o.Bases[c] {
			if err := b.Derivative(t, coeffDiff, pBar, qBar); err != nil {
				return err
			}
		}
	}
	return nil
}

// CreateLoweringOperator produces I_{dimPre} ⊗ a ⊗ I_{dimPost}, with a the
// standard annihilation operator of this oscillator's Nlevels-dimensional
// ladder.
func (o *Oscillator) CreateLoweringOperator(dimPre, dimPost int) *mat.Dense {
	a := mat.NewDense(o.Nlevels, o.Nlevels, nil)
	for n := 1; n < o.Nlevels; n++ {
		a.Set(n-1, n, math.Sqrt(float64(n)))
	}
	left := mat.NewDiagDense(dimPre, ones(dimPre))
	right := mat.NewDiagDense(dimPost, ones(dimPost))
	var tmp, out mat.Dense
	tmp.Kronecker(left, a)
	out.Kronecker(&tmp, right)
	return &out
}

// CreateNumberOp returns a†a lifted the same way as CreateLoweringOperator.
func (o *Oscillator) CreateNumberOp(dimPre, dimPost int) *mat.Dense {
	a := o.CreateLoweringOperator(dimPre, dimPost)
	var aDag, n mat.Dense
	aDag.CloneFrom(a.T())
	n.Mul(&aDag, a)
	return &n
}

func ones(n int) []float64 {
	if n <= 0 {
		chk.Panic("osc: dimension must be positive (got %d)", n)
	}
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}
