// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package idx implements the essential/guard level index map, Kronecker
// product constructors, and the Hermiticity/trace diagnostics shared by the
// rest of the engine.
package idx

import (
	"bytes"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"gonum.org/v1/gonum/mat"
)

// Invalid is the sentinel returned by FullToEss for a guard-level index.
const Invalid = -1

// LevelMap is the bijection between full level indices and essential level
// indices of a multi-oscillator composite system (§3 "Essential/Guard level
// map").
type LevelMap struct {
	Nlevels    []int // full level count per oscillator
	Nessential []int // essential level count per oscillator, Nessential[q] <= Nlevels[q]
	N          int   // product of Nlevels
	Ness       int   // product of Nessential

	full2ess []int // len N, Invalid for guard indices
	ess2full []int // len Ness
}

// NewLevelMap builds the bijection for the given per-oscillator level counts.
func NewLevelMap(nlevels, nessential []int) *LevelMap {
	if len(nlevels) != len(nessential) {
		chk.Panic("idx: nlevels and nessential must have the same length (%d != %d)", len(nlevels), len(nessential))
	}
	o := &LevelMap{Nlevels: nlevels, Nessential: nessential}
	o.N = 1
	o.Ness = 1
	for q := range nlevels {
		if nessential[q] > nlevels[q] {
			chk.Panic("idx: nessential[%d]=%d cannot exceed nlevels[%d]=%d", q, nessential[q], q, nlevels[q])
		}
		o.N *= nlevels[q]
		o.Ness *= nessential[q]
	}
	o.full2ess = make([]int, o.N)
	o.ess2full = make([]int, 0, o.Ness)
	for full := 0; full < o.N; full++ {
		digits := o.digitsOf(full, nlevels)
		essential := true
		for q, d := range digits {
			if d >= nessential[q] {
				essential = false
				break
			}
		}
		if !essential {
			o.full2ess[full] = Invalid
			continue
		}
		o.full2ess[full] = len(o.ess2full)
		o.ess2full = append(o.ess2full, full)
	}
	return o
}

// digitsOf decomposes a flat index into per-oscillator level indices using
// the same outer-to-inner ordering as the control parameter vector (§3).
func (o *LevelMap) digitsOf(flat int, bases []int) []int {
	digits := make([]int, len(bases))
	rem := flat
	for q := len(bases) - 1; q >= 0; q-- {
		digits[q] = rem % bases[q]
		rem /= bases[q]
	}
	return digits
}

// FullToEss maps a full index to its essential index, or Invalid if it names
// a guard level on any oscillator.
func (o *LevelMap) FullToEss(full int) int {
	return o.full2ess[full]
}

// EssToFull maps an essential index to its full index. Always succeeds:
// EssToFull(FullToEss(i)) == i for every essential i (property 3, §8).
func (o *LevelMap) EssToFull(ess int) int {
	return o.ess2full[ess]
}

// IsGuard reports whether full names a guard-level state.
func (o *LevelMap) IsGuard(full int) bool {
	return o.full2ess[full] == Invalid
}

// GuardIndices returns every full index that is a guard level.
func (o *LevelMap) GuardIndices() []int {
	out := make([]int, 0, o.N-o.Ness)
	for full := 0; full < o.N; full++ {
		if o.IsGuard(full) {
			out = append(out, full)
		}
	}
	return out
}

// IKron builds I_left ⊗ A ⊗ I_right, the standard lift of a per-oscillator
// operator A into the composite Hilbert space (§4 "Utilities",
// property 4: Ikron(A,d)·(v⊗w) = v⊗(A·w)).
func IKron(leftDim int, a mat.Matrix, rightDim int) *mat.Dense {
	left := mat.NewDiagDense(leftDim, ones(leftDim))
	right := mat.NewDiagDense(rightDim, ones(rightDim))
	var tmp, out mat.Dense
	tmp.Kronecker(left, a)
	out.Kronecker(&tmp, right)
	return &out
}

// Kron builds A ⊗ B directly.
func Kron(a, b mat.Matrix) *mat.Dense {
	var out mat.Dense
	out.Kronecker(a, b)
	return &out
}

func ones(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1
	}
	return v
}

// IsHermitian reports whether the N x N complex matrix given as separate
// real/imaginary parts is Hermitian within tol.
func IsHermitian(re, im *mat.Dense, tol float64) bool {
	r, c := re.Dims()
	if r != c {
		return false
	}
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			if abs(re.At(i, j)-re.At(j, i)) > tol {
				return false
			}
			if abs(im.At(i, j)+im.At(j, i)) > tol {
				return false
			}
		}
	}
	return true
}

// Trace returns the (complex) trace of a matrix given as real/imaginary
// parts, as (reTrace, imTrace).
func Trace(re, im *mat.Dense) (float64, float64) {
	r, _ := re.Dims()
	var tr, ti float64
	for i := 0; i < r; i++ {
		tr += re.At(i, i)
		ti += im.At(i, i)
	}
	return tr, ti
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// ReadVector reads a plain-text vector file: one float per line (§6
// "Persisted state layout"), via gosl/io's whitespace-delimited matrix
// reader (each line becomes a one-entry row).
func ReadVector(path string) ([]float64, error) {
	rows, err := io.ReadMatrix(path)
	if err != nil {
		return nil, chk.Err("idx: cannot read vector file %q: %v", path, err)
	}
	out := make([]float64, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		out = append(out, row[0])
	}
	return out, nil
}

// WriteVector writes a plain-text vector file, one entry per line, via
// gosl/io's buffered file writer.
func WriteVector(path string, v []float64) error {
	var buf bytes.Buffer
	for _, x := range v {
		io.Ff(&buf, "%23.15e\n", x)
	}
	return io.WriteFileV(path, &buf)
}
