// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package liouville

import (
	"math"
	"testing"

	"github.com/quandary-go/quandary/control"
	"github.com/quandary-go/quandary/osc"
	"github.com/quandary-go/quandary/sysmat"
)

func newTestOscs() []*osc.Oscillator {
	b := control.NewBSpline2nd(4, 0, 1, false)
	o := &osc.Oscillator{
		Nlevels:   2,
		TransFreq: 4.1,
		RotFreq:   4.1,
		Carriers:  []float64{0.0},
		Bases:     [][]*control.Basis{{b}},
	}
	o.AssignSkips(0)
	return []*osc.Oscillator{o}
}

func TestApplyZeroControlsIsUnitaryGenerator(tst *testing.T) {
	oscs := newTestOscs()
	sys := sysmat.Build(oscs, []float64{0.0}, nil, nil)
	g := NewGenerator(Schrodinger, sys, oscs)
	theta := make([]float64, oscs[0].NParams())
	x := []float64{1, 0, 0, 0} // |0> interleaved real/imag
	y := make([]float64, 4)
	if err := g.Apply(0.5, theta, x, y); err != nil {
		tst.Fatal(err)
	}
	// with zero drift (no detuning) and zero controls, state must not move
	for i, v := range y {
		if math.Abs(v) > 1e-12 {
			tst.Fatalf("y[%d] = %v, want 0", i, v)
		}
	}
}

func TestApplyDiffMatchesFiniteDifference(tst *testing.T) {
	oscs := newTestOscs()
	sys := sysmat.Build(oscs, []float64{0.3}, nil, nil)
	g := NewGenerator(Schrodinger, sys, oscs)
	theta := make([]float64, oscs[0].NParams())
	for i := range theta {
		theta[i] = 0.05 * float64(i+1)
	}
	x := []float64{0.8, 0.0, 0.0, 0.6}
	yBar := []float64{0.0, 1.0, 0.0, 0.0}
	t := 0.4

	gBar := make([]float64, len(theta))
	if err := g.ApplyDiff(t, theta, x, yBar, gBar); err != nil {
		tst.Fatal(err)
	}

	const eps = 1e-6
	for k := range theta {
		tp := append([]float64(nil), theta...)
		tm := append([]float64(nil), theta...)
		tp[k] += eps
		tm[k] -= eps
		yp := make([]float64, 4)
		ym := make([]float64, 4)
		if err := g.Apply(t, tp, x, yp); err != nil {
			tst.Fatal(err)
		}
		if err := g.Apply(t, tm, x, ym); err != nil {
			tst.Fatal(err)
		}
		var jp, jm float64
		for i := range yp {
			jp += yp[i] * yBar[i]
			jm += ym[i] * yBar[i]
		}
		numeric := (jp - jm) / (2 * eps)
		if math.Abs(gBar[k]-numeric) > 1e-5 {
			tst.Fatalf("dJ/dtheta[%d]: analytic %v vs numeric %v", k, gBar[k], numeric)
		}
	}
}

func TestApplyTransposeMatchesAdjointIdentity(tst *testing.T) {
	oscs := newTestOscs()
	sys := sysmat.Build(oscs, []float64{0.2}, nil, nil)
	g := NewGenerator(Schrodinger, sys, oscs)
	theta := make([]float64, oscs[0].NParams())
	for i := range theta {
		theta[i] = 0.02 * float64(i+1)
	}
	x := []float64{0.6, 0.1, -0.2, 0.75}
	xBar := []float64{0.3, -0.4, 0.5, 0.1}
	t := 0.2

	mx := make([]float64, 4)
	mtXBar := make([]float64, 4)
	if err := g.Apply(t, theta, x, mx); err != nil {
		tst.Fatal(err)
	}
	if err := g.ApplyTranspose(t, theta, xBar, mtXBar); err != nil {
		tst.Fatal(err)
	}
	var lhs, rhs float64
	for i := range x {
		lhs += xBar[i] * mx[i]
		rhs += mtXBar[i] * x[i]
	}
	if math.Abs(lhs-rhs) > 1e-10 {
		tst.Fatalf("<xbar,Mx>=%v != <Mtxbar,x>=%v", lhs, rhs)
	}
}

// TestAssembledMatchesMatrixFree checks that the sparse-assembled path
// (gosl/la.Triplet/CCMatrix/SpMatVecMulAdd) agrees to round-off with the
// matrix-free path, for both Apply and ApplyTranspose, in both Schrodinger
// and Lindblad mode.
func TestAssembledMatchesMatrixFree(tst *testing.T) {
	check := func(mode Mode, withDecay bool) {
		oscs := newTestOscs()
		if withDecay {
			oscs[0].DecayTime = 5.0
		}
		sys := sysmat.Build(oscs, []float64{0.3}, nil, nil)
		if withDecay {
			sys.AddCollapses(oscs)
		}
		theta := make([]float64, oscs[0].NParams())
		for i := range theta {
			theta[i] = 0.04 * float64(i+1)
		}
		t := 0.25

		free := NewGenerator(mode, sys, oscs)
		assembled := NewGenerator(mode, sys, oscs)
		assembled.Assembled = true

		d := free.Dim()
		x := make([]float64, d)
		xBar := make([]float64, d)
		for i := 0; i < d; i++ {
			x[i] = 0.1 * float64(i+1)
			xBar[i] = 0.2 * float64(d-i)
		}

		yFree, yAsm := make([]float64, d), make([]float64, d)
		if err := free.Apply(t, theta, x, yFree); err != nil {
			tst.Fatal(err)
		}
		if err := assembled.Apply(t, theta, x, yAsm); err != nil {
			tst.Fatal(err)
		}
		for i := range yFree {
			if math.Abs(yFree[i]-yAsm[i]) > 1e-10 {
				tst.Fatalf("mode=%v Apply[%d]: matrix-free %v vs assembled %v", mode, i, yFree[i], yAsm[i])
			}
		}

		ytFree, ytAsm := make([]float64, d), make([]float64, d)
		if err := free.ApplyTranspose(t, theta, xBar, ytFree); err != nil {
			tst.Fatal(err)
		}
		if err := assembled.ApplyTranspose(t, theta, xBar, ytAsm); err != nil {
			tst.Fatal(err)
		}
		for i := range ytFree {
			if math.Abs(ytFree[i]-ytAsm[i]) > 1e-10 {
				tst.Fatalf("mode=%v ApplyTranspose[%d]: matrix-free %v vs assembled %v", mode, i, ytFree[i], ytAsm[i])
			}
		}
	}
	check(Schrodinger, false)
	check(Lindblad, true)
}

func TestApplyLindbladPreservesTrace(tst *testing.T) {
	oscs := newTestOscs()
	oscs[0].DecayTime = 5.0
	sys := sysmat.Build(oscs, []float64{0.0}, nil, nil)
	sys.AddCollapses(oscs)
	g := NewGenerator(Lindblad, sys, oscs)
	theta := make([]float64, oscs[0].NParams())
	n := sys.N
	x := make([]float64, 2*n*n)
	// rho = diag(0.5, 0.5), real part only
	x[2*(0*n+0)] = 0.5
	x[2*(1*n+1)] = 0.5
	y := make([]float64, 2*n*n)
	if err := g.Apply(0.0, theta, x, y); err != nil {
		tst.Fatal(err)
	}
	// d(tr rho)/dt = sum of diagonal real parts of y must vanish (trace preservation)
	var traceDeriv float64
	for i := 0; i < n; i++ {
		traceDeriv += y[2*(i*n+i)]
	}
	if math.Abs(traceDeriv) > 1e-10 {
		tst.Fatalf("trace derivative = %v, want 0", traceDeriv)
	}
}
