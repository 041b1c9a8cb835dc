// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package sysmat builds the time-invariant drift and drive operators shared
// by every evaluation of the generator (§4.3 SystemMatrices). Mirrors
// gofem/ele/solid's pattern of assembling a fixed element operator once in
// Init and reusing it on every subsequent call.
package sysmat

import (
	"math"
	"math/cmplx"

	"github.com/cpmech/gosl/chk"
	"github.com/quandary-go/quandary/idx"
	"github.com/quandary-go/quandary/osc"
	"gonum.org/v1/gonum/mat"
)

// Coupling specifies a Jaynes-Cummings-style coupling strength between two
// oscillator indices, as read from configuration (Jkl, §6).
type Coupling struct {
	P, Q int
	J    float64
}

// CouplingTerm is the assembled form of a Coupling: the two operators it
// contributes and the rotating-frame detuning η_pq = rotfreq_p - rotfreq_q
// that modulates its phase at propagation time (§4.3).
type CouplingTerm struct {
	P, Q   int
	J      float64
	Eta    float64
	OpPQ   *mat.CDense // a_p a_q†
	OpQP   *mat.CDense // a_p† a_q
}

// Collapse is a pre-assembled Lindblad collapse operator (decay or
// dephasing channel) for one oscillator (§4.3).
type Collapse struct {
	OscIndex int
	Op       *mat.CDense // C_k, already scaled by 1/sqrt(T)
}

// Matrices holds the fixed N x N (Schrödinger-space) building blocks built
// once at startup: the time-independent part of the drift, the
// rotating-frame couplings (evaluated at propagation time by the caller),
// and the per-oscillator drive operators.
type Matrices struct {
	Nlevels []int
	N       int // product of Nlevels

	H0Fixed   *mat.CDense    // detuning + self-Kerr + cross-Kerr, time-independent
	Couplings []CouplingTerm // time-dependent via e^{∓iη t}

	DriveA []*mat.CDense // A_q = a_q + a_q† (Hermitian, real entries)
	DriveB []*mat.CDense // B_q = i(a_q - a_q†) (Hermitian, imaginary entries)

	Collapses []Collapse // Lindblad-mode only
}

// Build assembles H0Fixed, the coupling terms, and the per-oscillator drive
// operators from the given oscillators, per-oscillator detunings, the
// cross-Kerr map (keyed by ordered pair [p,q], p<q), and the list of
// Jaynes-Cummings couplings.
func Build(oscs []*osc.Oscillator, detuning []float64, crossKerr map[[2]int]float64, couplings []Coupling) *Matrices {
	nlevels := make([]int, len(oscs))
	for i, o := range oscs {
		nlevels[i] = o.Nlevels
	}
	m := &Matrices{Nlevels: nlevels}
	m.N = 1
	for _, n := range nlevels {
		m.N *= n
	}

	numberOps := make([]*mat.CDense, len(oscs))
	loweringOps := make([]*mat.CDense, len(oscs))
	h0 := mat.NewCDense(m.N, m.N, nil)
	for q, o := range oscs {
		pre, post := dimsAround(nlevels, q)
		loweringOps[q] = toComplex(o.CreateLoweringOperator(pre, post))
		numberOps[q] = numberOp(loweringOps[q])

		selfKerrTerm := mat.NewCDense(m.N, m.N, nil)
		selfKerrTerm.Mul(numberOps[q], numberOps[q])
		for i := 0; i < m.N; i++ {
			selfKerrTerm.Set(i, i, selfKerrTerm.At(i, i)-numberOps[q].At(i, i))
		}
		addScaled(h0, numberOps[q], complex(detuning[q], 0))
		addScaled(h0, selfKerrTerm, complex(-o.SelfKerr/2, 0))
	}
	for pair, xi := range crossKerr {
		p, q := pair[0], pair[1]
		term := mat.NewCDense(m.N, m.N, nil)
		term.Mul(numberOps[p], numberOps[q])
		addScaled(h0, term, complex(xi, 0))
	}
	m.H0Fixed = h0

	for _, c := range couplings {
		p, q := c.P, c.Q
		apDag := conjTranspose(loweringOps[p])
		aqDag := conjTranspose(loweringOps[q])
		opPQ := mat.NewCDense(m.N, m.N, nil)
		opPQ.Mul(loweringOps[p], aqDag)
		opQP := mat.NewCDense(m.N, m.N, nil)
		opQP.Mul(apDag, loweringOps[q])
		eta := oscs[p].RotFreq - oscs[q].RotFreq
		m.Couplings = append(m.Couplings, CouplingTerm{P: p, Q: q, J: c.J, Eta: eta, OpPQ: opPQ, OpQP: opQP})
	}

	m.DriveA = make([]*mat.CDense, len(oscs))
	m.DriveB = make([]*mat.CDense, len(oscs))
	for q := range oscs {
		aDag := conjTranspose(loweringOps[q])
		driveA := mat.NewCDense(m.N, m.N, nil)
		driveA.Add(loweringOps[q], aDag)
		diff := mat.NewCDense(m.N, m.N, nil)
		diff.Sub(loweringOps[q], aDag)
		driveB := mat.NewCDense(m.N, m.N, nil)
		addScaled(driveB, diff, complex(0, 1))
		m.DriveA[q] = driveA
		m.DriveB[q] = driveB
	}
	return m
}

// AddCollapses appends Lindblad collapse operators C_k = (1/sqrt(T1))·a_k
// (decay) and C_k = (1/sqrt(T2))·a_k†a_k (dephase) per oscillator whose
// DecayTime/DephaseTime is set.
func (m *Matrices) AddCollapses(oscs []*osc.Oscillator) {
	for q, o := range oscs {
		pre, post := dimsAround(m.Nlevels, q)
		if o.DecayTime > 0 {
			a := toComplex(o.CreateLoweringOperator(pre, post))
			m.Collapses = append(m.Collapses, Collapse{OscIndex: q, Op: scaled(a, complex(1/math.Sqrt(o.DecayTime), 0))})
		}
		if o.DephaseTime > 0 {
			n := numberOp(toComplex(o.CreateLoweringOperator(pre, post)))
			m.Collapses = append(m.Collapses, Collapse{OscIndex: q, Op: scaled(n, complex(1/math.Sqrt(o.DephaseTime), 0))})
		}
	}
}

// OverrideH0 replaces H0Fixed with a matrix read directly from a plain-text
// file (2*N^2 entries, real block then imaginary block, row-major, §6
// "Hamiltonian file"), for use when the parametric
// detuning/self-Kerr/cross-Kerr construction in Build is insufficient.
// Clears the rotating-frame coupling terms, since the file already encodes
// the complete time-independent drift.
func (m *Matrices) OverrideH0(path string) error {
	vals, err := idx.ReadVector(path)
	if err != nil {
		return err
	}
	if len(vals) != 2*m.N*m.N {
		return chk.Err("sysmat: expected %d entries in %q (2*N^2 block layout), got %d", 2*m.N*m.N, path, len(vals))
	}
	h := mat.NewCDense(m.N, m.N, nil)
	for i := 0; i < m.N; i++ {
		for j := 0; j < m.N; j++ {
			k := i*m.N + j
			h.Set(i, j, complex(vals[k], vals[m.N*m.N+k]))
		}
	}
	m.H0Fixed = h
	m.Couplings = nil
	return nil
}

// Hamiltonian evaluates the instantaneous drift + coupling Hamiltonian at
// time t (without the control-modulated drive terms, which liouville.Apply
// adds per-step so that the f_q(t)/g_q(t) prefactors don't force a full
// re-assembly of the fixed part).
func (m *Matrices) Hamiltonian(t float64) *mat.CDense {
	h := mat.NewCDense(m.N, m.N, nil)
	h.Copy(m.H0Fixed)
	for _, c := range m.Couplings {
		phase := cmplx.Exp(complex(0, -c.Eta*t))
		addScaled(h, c.OpPQ, complex(c.J, 0)*phase)
		addScaled(h, c.OpQP, complex(c.J, 0)*cmplx.Conj(phase))
	}
	return h
}

func numberOp(a *mat.CDense) *mat.CDense {
	aDag := conjTranspose(a)
	r, _ := a.Dims()
	out := mat.NewCDense(r, r, nil)
	out.Mul(aDag, a)
	return out
}

// conjTranspose returns A†, built elementwise since mat.CDense does not
// expose a conjugate-transpose view directly.
func conjTranspose(a *mat.CDense) *mat.CDense {
	r, c := a.Dims()
	out := mat.NewCDense(c, r, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(j, i, cmplx.Conj(a.At(i, j)))
		}
	}
	return out
}

func toComplex(a *mat.Dense) *mat.CDense {
	r, c := a.Dims()
	out := mat.NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, complex(a.At(i, j), 0))
		}
	}
	return out
}

func addScaled(dst, src *mat.CDense, s complex128) {
	r, c := dst.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			dst.Set(i, j, dst.At(i, j)+s*src.At(i, j))
		}
	}
}

func scaled(a *mat.CDense, s complex128) *mat.CDense {
	r, c := a.Dims()
	out := mat.NewCDense(r, c, nil)
	addScaled(out, a, s)
	return out
}

// dimsAround returns the Kronecker pre/post identity dimensions for
// oscillator index q among nlevels.
func dimsAround(nlevels []int, q int) (pre, post int) {
	pre, post = 1, 1
	for i := 0; i < q; i++ {
		pre *= nlevels[i]
	}
	for i := q + 1; i < len(nlevels); i++ {
		post *= nlevels[i]
	}
	return
}

// CheckHermitian panics if the instantaneous Hamiltonian at t=0 is not
// Hermitian within tol (construction-time ShapeError per §7).
func (m *Matrices) CheckHermitian(tol float64) {
	h := m.Hamiltonian(0)
	r, c := h.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if cmplx.Abs(h.At(i, j)-cmplx.Conj(h.At(j, i))) > tol {
				chk.Panic("sysmat: H(0) is not Hermitian at (%d,%d)", i, j)
			}
		}
	}
}
