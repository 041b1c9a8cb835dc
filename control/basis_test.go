// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package control

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
)

func TestBSpline2ndOutsideWindow(tst *testing.T) {
	b := NewBSpline2nd(10, 0, 1, false)
	theta := make([]float64, b.Nparams)
	p, q := b.Evaluate(-0.1, theta)
	chk.Float64(tst, "p", 1e-15, p, 0)
	chk.Float64(tst, "q", 1e-15, q, 0)
	p, q = b.Evaluate(1.1, theta)
	chk.Float64(tst, "p", 1e-15, p, 0)
	chk.Float64(tst, "q", 1e-15, q, 0)
}

func TestBSpline2ndSymmetryAtSixth(tst *testing.T) {
	// symmetric at tau = ±1/6 (§4.1 edge cases)
	v1 := bsplineVal(1.0 / 6.0)
	v2 := bsplineVal(-1.0 / 6.0)
	chk.Float64(tst, "bspline symmetry", 1e-14, v1, v2)
}

func TestBSpline2ndBoundaryEnforcement(tst *testing.T) {
	b := NewBSpline2nd(10, 0, 1, true)
	theta := make([]float64, b.Nparams)
	for i := range theta {
		theta[i] = 1
	}
	b.EnforceBoundary(theta)
	for _, l := range []int{0, 1, 8, 9} {
		if theta[2*l] != 0 || theta[2*l+1] != 0 {
			tst.Fatalf("boundary spline %d was not zeroed", l)
		}
	}
}

func TestBSpline0Variation(tst *testing.T) {
	b := NewBSpline0(4, 0, 1, false)
	theta := make([]float64, b.Nparams)
	// set p-quadrature coefficients to 0,1,2,3 -> variation should be
	// sum((1)^2*3)/4 = 0.75
	for l := 0; l < 4; l++ {
		theta[2*l] = float64(l)
	}
	v := b.ComputeVariation(theta)
	chk.Float64(tst, "variation", 1e-14, v, 0.75)
}

func TestStepDerivativeRejected(tst *testing.T) {
	b := NewStep(0, 1, 1, 1, 0.1)
	diff := make([]float64, 2)
	err := b.Derivative(0.5, diff, 1, 1)
	if err == nil {
		tst.Fatalf("expected Step.Derivative to reject gradient computation")
	}
}

func TestBSpline2ndDerivativeMatchesFiniteDifference(tst *testing.T) {
	b := NewBSpline2nd(8, 0, 1, false)
	theta := make([]float64, b.Nparams)
	for i := range theta {
		theta[i] = 0.3 + 0.01*float64(i)
	}
	t := 0.42
	const eps = 1e-6
	for k := 0; k < b.Nparams; k++ {
		thetaP := append([]float64(nil), theta...)
		thetaM := append([]float64(nil), theta...)
		thetaP[k] += eps
		thetaM[k] -= eps
		pP, qP := b.Evaluate(t, thetaP)
		pM, qM := b.Evaluate(t, thetaM)
		// seed pBar=1, qBar=0 isolates dp/dtheta_k
		dpdk := (pP - pM) / (2 * eps)
		diff := make([]float64, b.Nparams)
		b.Derivative(t, diff, 1, 0)
		if math.Abs(diff[k]-dpdk) > 1e-6 {
			tst.Fatalf("dp/dtheta[%d]: analytic %v vs numeric %v", k, diff[k], dpdk)
		}
		_ = qP
		_ = qM
	}
}
