// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package idx

import (
	"testing"

	"github.com/cpmech/gosl/chk"
	"gonum.org/v1/gonum/mat"
)

func TestLevelMapBijection(tst *testing.T) {
	// 3-level oscillator with 2 essential levels: guard level is index 2
	m := NewLevelMap([]int{3}, []int{2})
	chk.IntAssert(m.N, 3)
	chk.IntAssert(m.Ness, 2)
	if m.FullToEss(0) != 0 || m.FullToEss(1) != 1 {
		tst.Fatalf("essential levels should map 0->0, 1->1")
	}
	if m.FullToEss(2) != Invalid {
		tst.Fatalf("guard level 2 must map to Invalid")
	}
	for ess := 0; ess < m.Ness; ess++ {
		full := m.EssToFull(ess)
		if m.FullToEss(full) != ess {
			tst.Fatalf("EssToFull(FullToEss) is not identity at ess=%d", ess)
		}
	}
}

func TestLevelMapTwoOscillators(tst *testing.T) {
	// two qubits, both essential==full: no guard levels
	m := NewLevelMap([]int{2, 2}, []int{2, 2})
	chk.IntAssert(m.N, 4)
	chk.IntAssert(m.Ness, 4)
	if len(m.GuardIndices()) != 0 {
		tst.Fatalf("expected no guard levels when nessential==nlevels")
	}
}

func TestIKronProperty(tst *testing.T) {
	// property 4: Ikron(A,d)·(v⊗w) = v⊗(A·w)
	a := mat.NewDense(2, 2, []float64{0, 1, 1, 0})
	v := []float64{1, 2}
	w := []float64{3, 4}
	lifted := IKron(len(v), a, 1)
	vw := mat.NewVecDense(4, nil)
	for i, vi := range v {
		for j, wj := range w {
			vw.SetVec(i*2+j, vi*wj)
		}
	}
	var lhs mat.VecDense
	lhs.MulVec(lifted, vw)

	aw := mat.NewVecDense(2, nil)
	aw.MulVec(a, mat.NewVecDense(2, w))
	rhs := mat.NewVecDense(4, nil)
	for i, vi := range v {
		for j := 0; j < 2; j++ {
			rhs.SetVec(i*2+j, vi*aw.AtVec(j))
		}
	}
	for i := 0; i < 4; i++ {
		if diff := lhs.AtVec(i) - rhs.AtVec(i); diff > 1e-12 || diff < -1e-12 {
			tst.Fatalf("Ikron property failed at %d: %v != %v", i, lhs.AtVec(i), rhs.AtVec(i))
		}
	}
}

func TestHermiticityAndTrace(tst *testing.T) {
	re := mat.NewDense(2, 2, []float64{1, 0.5, 0.5, 0})
	im := mat.NewDense(2, 2, []float64{0, 0.25, -0.25, 0})
	if !IsHermitian(re, im, 1e-12) {
		tst.Fatalf("expected Hermitian matrix to pass")
	}
	tr, ti := Trace(re, im)
	chk.Float64(tst, "Re(tr)", 1e-12, tr, 1.0)
	chk.Float64(tst, "Im(tr)", 1e-12, ti, 0.0)
}
