// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package control implements the finite parameterisation of a single
// oscillator's complex drive envelope p(t)+iq(t) (§4.1 ControlBasis).
//
// The basis variants form a closed enumeration (quadratic B-splines in the
// Petersson style, an amplitude-only quadratic variant, piecewise-constant
// steps, and plain step functions); each has at most four entry points and
// no cross-variant state, so — per the design notes — this is a tagged sum
// with a type switch rather than a virtual-interface hierarchy.
package control

import (
	"math"

	"github.com/cpmech/gosl/chk"
)

// Kind identifies a ControlBasis variant.
type Kind int

const (
	BSpline2nd Kind = iota
	BSpline2ndAmplitude
	BSpline0
	Step
)

// ErrNotDifferentiable is returned by Derivative when called on a Step
// basis. Per the decided open question (SPEC_FULL.md), Step controls are
// not optimisable.
var ErrNotDifferentiable = chk.Err("control: Step basis has no analytic derivative; its controls are not optimisable")

// Basis is one oscillator-carrier's parameterised drive envelope.
type Basis struct {
	Kind Kind

	// time window
	TStart, TStop float64

	// BSpline2nd / BSpline2ndAmplitude / BSpline0
	Nsplines int
	Centers  []float64 // spline centres t_l
	Width    float64   // Δ, local support is 3Δ

	// BSpline2ndAmplitude scaling factor (carrier amplitude envelope only)
	Scaling float64

	// Step
	AmpP, AmpQ, Ramp float64

	// Nparams is the number of real scalars this basis consumes from θ,
	// two per spline coefficient (p- and q-quadrature) for the spline
	// variants, two total for Step.
	Nparams int

	// Skip is this basis's offset into the flat parameter vector θ (§3).
	Skip int

	// EnforceZeroBoundary zeroes the first two / last two (BSpline2nd) or
	// first / last (BSpline0) spline coefficients.
	EnforceZeroBoundary bool
}

// NewBSpline2nd builds a quadratic-B-spline basis with nsplines functions
// covering [tStart, tStop].
func NewBSpline2nd(nsplines int, tStart, tStop float64, enforceZeroBoundary bool) *Basis {
	if nsplines < 3 {
		chk.Panic("control: BSpline2nd requires at least 3 splines (got %d)", nsplines)
	}
	width := (tStop - tStart) / float64(nsplines-2)
	centers := make([]float64, nsplines)
	for l := 0; l < nsplines; l++ {
		centers[l] = tStart + width*(float64(l)-0.5)
	}
	return &Basis{
		Kind: BSpline2nd, TStart: tStart, TStop: tStop,
		Nsplines: nsplines, Centers: centers, Width: width,
		Nparams: 2 * nsplines, EnforceZeroBoundary: enforceZeroBoundary,
	}
}

// NewBSpline2ndAmplitude is the quadratic-spline variant that scales a
// fixed carrier amplitude rather than providing two independent
// quadratures.
func NewBSpline2ndAmplitude(nsplines int, tStart, tStop, scaling float64, enforceZeroBoundary bool) *Basis {
	b := NewBSpline2nd(nsplines, tStart, tStop, enforceZeroBoundary)
	b.Kind = BSpline2ndAmplitude
	b.Scaling = scaling
	return b
}

// NewBSpline0 builds a piecewise-constant basis.
func NewBSpline0(nsplines int, tStart, tStop float64, enforceZeroBoundary bool) *Basis {
	if nsplines < 1 {
		chk.Panic("control: BSpline0 requires at least 1 piece (got %d)", nsplines)
	}
	width := (tStop - tStart) / float64(nsplines)
	centers := make([]float64, nsplines)
	for l := 0; l < nsplines; l++ {
		centers[l] = tStart + width*(float64(l)+0.5)
	}
	return &Basis{
		Kind: BSpline0, TStart: tStart, TStop: tStop,
		Nsplines: nsplines, Centers: centers, Width: width,
		Nparams: 2 * nsplines, EnforceZeroBoundary: enforceZeroBoundary,
	}
}

// NewStep builds a non-differentiable constant-amplitude step basis with a
// linear ramp-up/ramp-down of duration ramp at each end of the window.
func NewStep(tStart, tStop, ampP, ampQ, ramp float64) *Basis {
	return &Basis{
		Kind: Step, TStart: tStart, TStop: tStop,
		AmpP: ampP, AmpQ: ampQ, Ramp: ramp, Nparams: 2,
	}
}

// bsplineVal evaluates the canonical three-piece quadratic B-spline at
// τ = (t - center)/width ∈ (-3/2, 3/2), zero outside.
func bsplineVal(tau float64) float64 {
	a := math.Abs(tau)
	switch {
	case a <= 0.5:
		return 0.75 - a*a
	case a <= 1.5:
		d := 1.5 - a
		return 0.5 * d * d
	default:
		return 0
	}
}

// Evaluate returns (p, q) at time t given the carrier's slice of θ
// (θ[Skip:Skip+Nparams]).
func (b *Basis) Evaluate(t float64, theta []float64) (p, q float64) {
	if t < b.TStart || t > b.TStop {
		return 0, 0
	}
	coeff := theta[b.Skip : b.Skip+b.Nparams]
	switch b.Kind {
	case BSpline2nd, BSpline2ndAmplitude:
		for l := 0; l < b.Nsplines; l++ {
			if b.EnforceZeroBoundary && (l < 2 || l >= b.Nsplines-2) {
				continue
			}
			tau := (t - b.Centers[l]) / b.Width
			bl := bsplineVal(tau)
			if bl == 0 {
				continue
			}
			p += coeff[2*l] * bl
			q += coeff[2*l+1] * bl
		}
		if b.Kind == BSpline2ndAmplitude {
			p *= b.Scaling
			q *= b.Scaling
		}
	case BSpline0:
		l := b.pieceIndex(t)
		if l < 0 {
			return 0, 0
		}
		if b.EnforceZeroBoundary && (l == 0 || l == b.Nsplines-1) {
			return 0, 0
		}
		return coeff[2*l], coeff[2*l+1]
	case Step:
		return b.stepAmplitude(t, coeff)
	}
	return
}

func (b *Basis) pieceIndex(t float64) int {
	l := int((t - b.TStart) / b.Width)
	if l < 0 || l >= b.Nsplines {
		return -1
	}
	return l
}

// stepAmplitude ramps linearly from 0 to the step amplitude over the first
// Ramp seconds and back down over the last Ramp seconds.
func (b *Basis) stepAmplitude(t float64, coeff []float64) (p, q float64) {
	ampP, ampQ := coeff[0], coeff[1]
	scale := 1.0
	if b.Ramp > 0 {
		if t-b.TStart < b.Ramp {
			scale = (t - b.TStart) / b.Ramp
		} else if b.TStop-t < b.Ramp {
			scale = (b.TStop - t) / b.Ramp
		}
	}
	return ampP * scale, ampQ * scale
}

// Derivative accumulates into coeffDiff the vector-Jacobian product of
// Evaluate with adjoint seeds (pBar, qBar).
func (b *Basis) Derivative(t float64, coeffDiff []float64, pBar, qBar float64) error {
	if t < b.TStart || t > b.TStop {
		return nil
	}
	switch b.Kind {
	case BSpline2nd, BSpline2ndAmplitude:
		scale := 1.0
		if b.Kind == BSpline2ndAmplitude {
			scale = b.Scaling
		}
		for l := 0; l < b.Nsplines; l++ {
			if b.EnforceZeroBoundary && (l < 2 || l >= b.Nsplines-2) {
				continue
			}
			tau := (t - b.Centers[l]) / b.Width
			bl := bsplineVal(tau)
			if bl == 0 {
				continue
			}
			coeffDiff[b.Skip+2*l] += bl * scale * pBar
			coeffDiff[b.Skip+2*l+1] += bl * scale * qBar
		}
		return nil
	case BSpline0:
		l := b.pieceIndex(t)
		if l < 0 {
			return nil
		}
		if b.EnforceZeroBoundary && (l == 0 || l == b.Nsplines-1) {
			return nil
		}
		coeffDiff[b.Skip+2*l] += pBar
		coeffDiff[b.Skip+2*l+1] += qBar
		return nil
	case Step:
		return ErrNotDifferentiable
	}
	return nil
}

// ComputeVariation returns the piecewise-constant roughness penalty
// Σ_l (α_l - α_{l-1})² / Nsplines. Defined for BSpline0 only.
func (b *Basis) ComputeVariation(theta []float64) float64 {
	if b.Kind != BSpline0 {
		chk.Panic("control: ComputeVariation is only defined for BSpline0 bases")
	}
	coeff := theta[b.Skip : b.Skip+b.Nparams]
	var sum float64
	for l := 1; l < b.Nsplines; l++ {
		dp := coeff[2*l] - coeff[2*(l-1)]
		dq := coeff[2*l+1] - coeff[2*(l-1)+1]
		sum += dp*dp + dq*dq
	}
	return sum / float64(b.Nsplines)
}

// ComputeVariationDiff accumulates ∂(ComputeVariation)/∂θ into coeffDiff,
// scaled by the outer adjoint seed.
func (b *Basis) ComputeVariationDiff(theta []float64, coeffDiff []float64, seed float64) {
	if b.Kind != BSpline0 {
		chk.Panic("control: ComputeVariationDiff is only defined for BSpline0 bases")
	}
	n := float64(b.Nsplines)
	coeff := theta[b.Skip : b.Skip+b.Nparams]
	for l := 1; l < b.Nsplines; l++ {
		dp := coeff[2*l] - coeff[2*(l-1)]
		dq := coeff[2*l+1] - coeff[2*(l-1)+1]
		coeffDiff[b.Skip+2*l] += 2 * dp * seed / n
		coeffDiff[b.Skip+2*(l-1)] -= 2 * dp * seed / n
		coeffDiff[b.Skip+2*l+1] += 2 * dq * seed / n
		coeffDiff[b.Skip+2*(l-1)+1] -= 2 * dq * seed / n
	}
}

// EnforceBoundary zeroes the boundary coefficients of theta in place, if
// EnforceZeroBoundary is set.
func (b *Basis) EnforceBoundary(theta []float64) {
	if !b.EnforceZeroBoundary {
		return
	}
	coeff := theta[b.Skip : b.Skip+b.Nparams]
	switch b.Kind {
	case BSpline2nd, BSpline2ndAmplitude:
		for _, l := range []int{0, 1, b.Nsplines - 2, b.Nsplines - 1} {
			coeff[2*l] = 0
			coeff[2*l+1] = 0
		}
	case BSpline0:
		for _, l := range []int{0, b.Nsplines - 1} {
			coeff[2*l] = 0
			coeff[2*l+1] = 0
		}
	}
}
