// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package osc

import (
	"math"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/quandary-go/quandary/control"
)

func newTestOscillator() *Oscillator {
	b := control.NewBSpline2nd(6, 0, 1, false)
	o := &Oscillator{
		Nlevels:   3,
		TransFreq: 4.1,
		RotFreq:   4.1,
		Carriers:  []float64{0.0},
		Bases:     [][]*control.Basis{{b}},
	}
	o.AssignSkips(0)
	return o
}

func TestEvalControlZeroParams(tst *testing.T) {
	o := newTestOscillator()
	theta := make([]float64, o.NParams())
	f, g := o.EvalControl(0.5, theta, false)
	chk.Float64(tst, "f", 1e-15, f, 0)
	chk.Float64(tst, "g", 1e-15, g, 0)
}

// TestEvalEnvelopeMatchesControlAtZeroCarrierFrequency checks that, with a
// single carrier at frequency zero, EvalEnvelope's raw p/q matches
// EvalControl's carrier-modulated f/g exactly (cos(0)=1, sin(0)=0).
func TestEvalEnvelopeMatchesControlAtZeroCarrierFrequency(tst *testing.T) {
	o := newTestOscillator()
	theta := make([]float64, o.NParams())
	for i := range theta {
		theta[i] = 0.2 * float64(i+1)
	}
	p, q := o.EvalEnvelope(0.4, theta)
	f, g := o.EvalControl(0.4, theta, false)
	chk.Float64(tst, "p vs f", 1e-14, p, f)
	chk.Float64(tst, "q vs g", 1e-14, q, g)
}

func TestEvalControlPiPulseOverride(tst *testing.T) {
	o := newTestOscillator()
	o.PiPulses = []PiPulse{{TStart: 0.2, TStop: 0.3, AmpP: 1.5, AmpQ: -0.5}}
	theta := make([]float64, o.NParams())
	f, g := o.EvalControl(0.25, theta, false)
	chk.Float64(tst, "f", 1e-15, f, 1.5)
	chk.Float64(tst, "g", 1e-15, g, -0.5)
}

func TestLoweringOperatorLadder(tst *testing.T) {
	o := &Oscillator{Nlevels: 3}
	a := o.CreateLoweringOperator(1, 1)
	chk.Float64(tst, "a[0,1]", 1e-14, a.At(0, 1), 1.0)
	chk.Float64(tst, "a[1,2]", 1e-14, a.At(1, 2), math.Sqrt(2))
	chk.Float64(tst, "a[2,1]", 1e-14, a.At(2, 1), 0.0)
}

func TestNumberOpDiagonal(tst *testing.T) {
	o := &Oscillator{Nlevels: 3}
	n := o.CreateNumberOp(1, 1)
	chk.Float64(tst, "n00", 1e-13, n.At(0, 0), 0.0)
	chk.Float64(tst, "n11", 1e-13, n.At(1, 1), 1.0)
	chk.Float64(tst, "n22", 1e-13, n.At(2, 2), 2.0)
}

func TestEvalControlDiffMatchesFiniteDifference(tst *testing.T) {
	o := newTestOscillator()
	theta := make([]float64, o.NParams())
	for i := range theta {
		theta[i] = 0.1 * float64(i+1)
	}
	t := 0.37
	const eps = 1e-6
	for k := 0; k < len(theta); k++ {
		tp := append([]float64(nil), theta...)
		tm := append([]float64(nil), theta...)
		tp[k] += eps
		tm[k] -= eps
		fp, _ := o.EvalControl(t, tp, false)
		fm, _ := o.EvalControl(t, tm, false)
		dfdk := (fp - fm) / (2 * eps)
		diff := make([]float64, len(theta))
		if err := o.EvalControlDiff(t, theta, diff, 1, 0); err != nil {
			tst.Fatal(err)
		}
		if math.Abs(diff[k]-dfdk) > 1e-6 {
			tst.Fatalf("df/dtheta[%d]: analytic %v vs numeric %v", k, diff[k], dfdk)
		}
	}
}
