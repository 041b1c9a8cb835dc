// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package gate implements target unitaries and their vectorised action on
// the real-doubled state (§4.8 Gate). Per the decided "duplicate sibling
// APIs" open question (SPEC_FULL.md), Gate holds separate real and
// imaginary N_ess x N_ess matrices rather than the earlier CNOT-only form.
package gate

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/cpmech/gosl/chk"
	"github.com/quandary-go/quandary/idx"
	"gonum.org/v1/gonum/mat"
)

// Kind names a built-in gate or the file-loaded variant.
type Kind int

const (
	PauliX Kind = iota
	PauliY
	PauliZ
	Hadamard
	CNOT
	FromFile
)

// Gate is a target unitary expressed over the essential-level subspace,
// stored as separate real/imaginary parts (§3 Target "Gate(V)").
type Gate struct {
	Kind Kind
	N    int // N_ess (dimension of the unitary)
	Re   *mat.Dense
	Im   *mat.Dense
}

// New constructs one of the built-in two-level/two-qubit gates by name, as
// read from the §6 optim_target configuration key ("gate,X" etc).
func New(name string) *Gate {
	switch name {
	case "X":
		return pauli([][2]float64{{0, 1}, {1, 0}}, nil)
	case "Y":
		return pauli(nil, [][2]float64{{0, -1}, {1, 0}})
	case "Z":
		return pauli([][2]float64{{1, 0}, {0, -1}}, nil)
	case "H":
		s := 1 / math.Sqrt2
		return pauli([][2]float64{{s, s}, {s, -s}}, nil)
	case "CNOT":
		return cnot()
	default:
		chk.Panic("gate: unknown gate name %q", name)
		return nil
	}
}

func pauli(re, im [][2]float64) *Gate {
	g := &Gate{N: 2, Re: mat.NewDense(2, 2, nil), Im: mat.NewDense(2, 2, nil)}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			if re != nil {
				g.Re.Set(i, j, re[i][j])
			}
			if im != nil {
				g.Im.Set(i, j, im[i][j])
			}
		}
	}
	switch {
	case re != nil && re[0][0] == 0 && re[0][1] == 1:
		g.Kind = PauliX
	case im != nil:
		g.Kind = PauliY
	case re != nil && re[1][1] == -1 && re[0][1] == 0:
		g.Kind = PauliZ
	default:
		g.Kind = Hadamard
	}
	return g
}

// cnot builds the 4x4 controlled-NOT unitary over two essential two-level
// oscillators, basis-ordered (q0,q1) with q0 the control.
func cnot() *Gate {
	g := &Gate{Kind: CNOT, N: 4, Re: mat.NewDense(4, 4, nil), Im: mat.NewDense(4, 4, nil)}
	perm := []int{0, 1, 3, 2} // |00>,|01>,|11>,|10>: swap the last two rows
	for i, j := range perm {
		g.Re.Set(i, j, 1)
	}
	return g
}

// LoadFromFile reads V's real and imaginary parts from a plain-text file:
// n² real entries then n² imaginary entries, row-major (§6 "Hamiltonian
// file"-style layout, reused here for gate files).
func LoadFromFile(path string, n int) (*Gate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, chk.Err("gate: cannot open %q: %v", path, err)
	}
	defer f.Close()
	var vals []float64
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return nil, chk.Err("gate: malformed entry %q in %q: %v", line, path, err)
		}
		vals = append(vals, v)
	}
	if len(vals) != 2*n*n {
		return nil, chk.Err("gate: expected %d entries in %q, got %d", 2*n*n, path, len(vals))
	}
	g := &Gate{Kind: FromFile, N: n, Re: mat.NewDense(n, n, nil), Im: mat.NewDense(n, n, nil)}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			g.Re.Set(i, j, vals[i*n+j])
			g.Im.Set(i, j, vals[n*n+i*n+j])
		}
	}
	return g, nil
}

// complexView returns V as a single mat.CDense for internal algebra.
func (g *Gate) complexView() *mat.CDense {
	c := mat.NewCDense(g.N, g.N, nil)
	for i := 0; i < g.N; i++ {
		for j := 0; j < g.N; j++ {
			c.Set(i, j, complex(g.Re.At(i, j), g.Im.At(i, j)))
		}
	}
	return c
}

func (g *Gate) setFromComplex(c *mat.CDense) {
	for i := 0; i < g.N; i++ {
		for j := 0; j < g.N; j++ {
			z := c.At(i, j)
			g.Re.Set(i, j, real(z))
			g.Im.Set(i, j, imag(z))
		}
	}
}

// ApplyRotatingFramePhase folds each oscillator's rotating-frame phase
// exp(i·φ_q·T) into V by left-multiplying by the diagonal phase matrix
// whose essential-index entries are Σ_q digit_q(ess)·φ_q·T, so the target
// is expressed in the same rotating frame used for time integration
// (§4.8 "Gate-rotation phase").
func (g *Gate) ApplyRotatingFramePhase(lm *idx.LevelMap, phi []float64, T float64) {
	if lm.Ness != g.N {
		chk.Panic("gate: level map essential dimension %d does not match gate dimension %d", lm.Ness, g.N)
	}
	v := g.complexView()
	out := mat.NewCDense(g.N, g.N, nil)
	for ess := 0; ess < g.N; ess++ {
		full := lm.EssToFull(ess)
		angle := rotationAngle(full, lm.Nlevels, phi) * T
		phase := complex(math.Cos(angle), math.Sin(angle))
		for j := 0; j < g.N; j++ {
			out.Set(ess, j, phase*v.At(ess, j))
		}
	}
	g.setFromComplex(out)
}

func rotationAngle(full int, nlevels []int, phi []float64) float64 {
	digits := make([]int, len(nlevels))
	rem := full
	for q := len(nlevels) - 1; q >= 0; q-- {
		digits[q] = rem % nlevels[q]
		rem /= nlevels[q]
	}
	var angle float64
	for q, d := range digits {
		angle += float64(d) * phi[q]
	}
	return angle
}

// ApplySchrodinger computes out = V·x for the interleaved real state x of
// length 2·N.
func (g *Gate) ApplySchrodinger(x, out []float64) {
	v := g.complexView()
	for i := 0; i < g.N; i++ {
		var re, im float64
		for j := 0; j < g.N; j++ {
			xr, xi := x[2*j], x[2*j+1]
			vr, vi := real(v.At(i, j)), imag(v.At(i, j))
			re += vr*xr - vi*xi
			im += vr*xi + vi*xr
		}
		out[2*i] = re
		out[2*i+1] = im
	}
}

// ApplyLindblad computes vec(out) = (V̄⊗V)·vec(ρ), i.e. out = VρV†, for the
// interleaved real vectorised density matrix x of length 2·N².
func (g *Gate) ApplyLindblad(x, out []float64) {
	v := g.complexView()
	rho := mat.NewCDense(g.N, g.N, nil)
	for i := 0; i < g.N; i++ {
		for j := 0; j < g.N; j++ {
			k := i*g.N + j
			rho.Set(i, j, complex(x[2*k], x[2*k+1]))
		}
	}
	var vRho, vRhoVDag mat.CDense
	vDag := mat.NewCDense(g.N, g.N, nil)
	for i := 0; i < g.N; i++ {
		for j := 0; j < g.N; j++ {
			vDag.Set(j, i, complexConj(v.At(i, j)))
		}
	}
	vRho.Mul(v, rho)
	vRhoVDag.Mul(&vRho, vDag)
	for i := 0; i < g.N; i++ {
		for j := 0; j < g.N; j++ {
			k := i*g.N + j
			z := vRhoVDag.At(i, j)
			out[2*k] = real(z)
			out[2*k+1] = imag(z)
		}
	}
}

func complexConj(z complex128) complex128 { return complex(real(z), -imag(z)) }
