// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"

	"github.com/cpmech/gosl/io"
	"github.com/quandary-go/quandary/config"
	"github.com/quandary-go/quandary/idx"
)

// writeConfigLog dumps every parsed configuration key to config_log.dat
// (§6 "Output files"), one "key = value" per line, so a run's settings are
// reproducible from its output directory alone.
func writeConfigLog(path string, cfg *config.Config) error {
	var buf bytes.Buffer
	for k, v := range cfg.Raw() {
		io.Ff(&buf, "%s = %s\n", k, v)
	}
	return io.WriteFileV(path, &buf)
}

// writeControlFiles dumps each oscillator's envelope and carrier-modulated
// drive to controlQ.dat, columns (t, p(t), q(t), f(t), g(t)) (§6 "Output
// files").
func writeControlFiles(eng *Engine, theta []float64) error {
	dt := eng.Cfg.Dt
	for q, o := range eng.Oscs {
		var buf bytes.Buffer
		for n := 0; n <= eng.Cfg.Ntime; n++ {
			t := float64(n) * dt
			p, qq := o.EvalEnvelope(t, theta)
			fc, gc := o.EvalControl(t, theta, false)
			io.Ff(&buf, "%23.15e %23.15e %23.15e %23.15e %23.15e\n", t, p, qq, fc, gc)
		}
		if err := io.WriteFileV(io.Sf("control%d.dat", q), &buf); err != nil {
			return err
		}
	}
	return nil
}

// writeParams persists the final parameter vector θ to params.dat (§6
// "Output files"), reusing idx's plain one-float-per-line vector writer.
func writeParams(path string, theta []float64) error {
	return idx.WriteVector(path, theta)
}

// writeTrajectory dumps one initial condition's forward trajectory to
// rho_Re.iinit<i>.dat / rho_Im.iinit<i>.dat (§6 "Output files"): each line
// is one time step, columns are the real (resp. imaginary) half of the
// interleaved state.
func writeTrajectory(iinit int, ts []float64, states [][]float64) error {
	var reBuf, imBuf bytes.Buffer
	for n, x := range states {
		io.Ff(&reBuf, "%23.15e", ts[n])
		io.Ff(&imBuf, "%23.15e", ts[n])
		for k := 0; k < len(x)/2; k++ {
			io.Ff(&reBuf, " %23.15e", x[2*k])
			io.Ff(&imBuf, " %23.15e", x[2*k+1])
		}
		io.Ff(&reBuf, "\n")
		io.Ff(&imBuf, "\n")
	}
	if err := io.WriteFileV(io.Sf("rho_Re.iinit%d.dat", iinit), &reBuf); err != nil {
		return err
	}
	return io.WriteFileV(io.Sf("rho_Im.iinit%d.dat", iinit), &imBuf)
}

// writeOptimHistory records one line of optim_history.dat (§6 "Output
// files"): iteration, J, ‖g‖. Scoped to the final iterate only, since the
// reference pack exercises no verified per-iteration callback shape for
// gonum/optimize's current Problem/Settings API (DESIGN.md).
func writeOptimHistory(path string, iterations int, f float64, gNorm float64) error {
	var buf bytes.Buffer
	io.Ff(&buf, "%d %23.15e %23.15e\n", iterations, f, gNorm)
	return io.WriteFileV(path, &buf)
}

// writeTiming records the wall-clock duration of one run mode to
// timing.dat (§6 "Output files"), in seconds.
func writeTiming(path string, seconds float64) error {
	var buf bytes.Buffer
	io.Ff(&buf, "%23.15e\n", seconds)
	return io.WriteFileV(path, &buf)
}
