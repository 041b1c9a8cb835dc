// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sysmat

import (
	"path/filepath"
	"testing"

	"github.com/cpmech/gosl/chk"
	"github.com/quandary-go/quandary/idx"
	"github.com/quandary-go/quandary/osc"
)

func TestBuildTwoLevelDrift(tst *testing.T) {
	o := &osc.Oscillator{Nlevels: 2, TransFreq: 4.1, RotFreq: 4.1}
	m := Build([]*osc.Oscillator{o}, []float64{0.0}, nil, nil)
	chk.IntAssert(m.N, 2)
	// detuning=0, no self-Kerr contribution given SelfKerr=0 -> H0Fixed should be zero
	chk.Float64(tst, "H0Fixed[0,0]", 1e-13, real(m.H0Fixed.At(0, 0)), 0)
	chk.Float64(tst, "H0Fixed[1,1]", 1e-13, real(m.H0Fixed.At(1, 1)), 0)
}

func TestBuildSelfKerrDetuning(tst *testing.T) {
	o := &osc.Oscillator{Nlevels: 3, SelfKerr: 0.2}
	detuning := []float64{1.5}
	m := Build([]*osc.Oscillator{o}, detuning, nil, nil)
	// H0Fixed[1,1] = detuning*1 - (xi/2)*1*0 = 1.5
	chk.Float64(tst, "H0Fixed[1,1]", 1e-13, real(m.H0Fixed.At(1, 1)), 1.5)
	// H0Fixed[2,2] = detuning*2 - (xi/2)*2*1 = 3 - 0.2 = 2.8
	chk.Float64(tst, "H0Fixed[2,2]", 1e-13, real(m.H0Fixed.At(2, 2)), 2.8)
}

func TestCheckHermitianPassesForDrift(tst *testing.T) {
	o1 := &osc.Oscillator{Nlevels: 2, RotFreq: 4.0}
	o2 := &osc.Oscillator{Nlevels: 2, RotFreq: 4.1}
	m := Build([]*osc.Oscillator{o1, o2}, []float64{0, 0}, nil, []Coupling{{P: 0, Q: 1, J: 0.003}})
	m.CheckHermitian(1e-10) // must not panic
}

func TestAddCollapsesDecayAndDephase(tst *testing.T) {
	o := &osc.Oscillator{Nlevels: 2, DecayTime: 10.0, DephaseTime: 20.0}
	m := Build([]*osc.Oscillator{o}, []float64{0}, nil, nil)
	m.AddCollapses([]*osc.Oscillator{o})
	if len(m.Collapses) != 2 {
		tst.Fatalf("expected 2 collapse operators (decay+dephase), got %d", len(m.Collapses))
	}
}

// TestOverrideH0ReplacesDriftAndClearsCouplings checks that a file-loaded
// Hamiltonian (§6 "Hamiltonian file") supersedes both the parametric drift
// and any rotating-frame coupling terms.
func TestOverrideH0ReplacesDriftAndClearsCouplings(tst *testing.T) {
	o1 := &osc.Oscillator{Nlevels: 2, RotFreq: 4.0}
	o2 := &osc.Oscillator{Nlevels: 2, RotFreq: 4.2}
	m := Build([]*osc.Oscillator{o1, o2}, []float64{0, 0}, nil, []Coupling{{P: 0, Q: 1, J: 0.01}})

	n := m.N
	vals := make([]float64, 2*n*n)
	vals[0*n+3] = 2.5 // real part of H[0,3]
	vals[n*n+0*n+3] = -1.5 // imaginary part of H[0,3]

	path := filepath.Join(tst.TempDir(), "h0.dat")
	if err := idx.WriteVector(path, vals); err != nil {
		tst.Fatalf("WriteVector: %v", err)
	}
	if err := m.OverrideH0(path); err != nil {
		tst.Fatalf("OverrideH0: %v", err)
	}
	got := m.H0Fixed.At(0, 3)
	chk.Float64(tst, "real(H0Fixed[0,3])", 1e-13, real(got), 2.5)
	chk.Float64(tst, "imag(H0Fixed[0,3])", 1e-13, imag(got), -1.5)
	if len(m.Couplings) != 0 {
		tst.Fatalf("expected Couplings cleared after OverrideH0, got %d", len(m.Couplings))
	}
}

func TestHamiltonianCouplingPhaseRotation(tst *testing.T) {
	o1 := &osc.Oscillator{Nlevels: 2, RotFreq: 4.0}
	o2 := &osc.Oscillator{Nlevels: 2, RotFreq: 4.2}
	m := Build([]*osc.Oscillator{o1, o2}, []float64{0, 0}, nil, []Coupling{{P: 0, Q: 1, J: 0.01}})
	h0 := m.Hamiltonian(0)
	h1 := m.Hamiltonian(1.0)
	// at eta=-0.2, after t=1 the off-diagonal coupling phase has rotated, so the
	// (complex) entries at t=0 and t=1 must differ.
	same := true
	r, c := h0.Dims()
	for i := 0; i < r && same; i++ {
		for j := 0; j < c; j++ {
			if h0.At(i, j) != h1.At(i, j) {
				same = false
				break
			}
		}
	}
	if same {
		tst.Fatal("expected Hamiltonian coupling term to rotate with time")
	}
}
