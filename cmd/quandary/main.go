// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command quandary runs a quantum optimal-control simulation, gradient
// check, control-envelope dump, or gradient-based optimization from a
// single configuration file (§6), mirroring gofem's main.go command-line
// harness.
package main

import (
	"flag"
	"fmt"
	"math"
	"time"

	"github.com/cpmech/gosl/chk"
	"github.com/cpmech/gosl/io"
	"github.com/cpmech/gosl/mpi"
	"github.com/quandary-go/quandary/config"
	"github.com/quandary-go/quandary/runtime"
	"github.com/quandary-go/quandary/stepper"
	"gonum.org/v1/gonum/optimize"
)

func main() {
	quiet := flag.Bool("quiet", false, "suppress informational output")
	flag.Parse()
	verbose := !*quiet

	defer func() {
		if err := recover(); err != nil {
			if mpi.Rank() == 0 {
				chk.Verbose = true
				for i := 8; i > 3; i-- {
					chk.CallerInfo(i)
				}
				io.PfRed("ERROR: %v\n", err)
			}
		}
		mpi.Stop(false)
	}()
	mpi.Start(false)

	if mpi.Rank() == 0 && verbose {
		io.PfWhite("\nquandary -- quantum optimal control\n\n")
	}

	if len(flag.Args()) < 1 {
		chk.Panic("please provide a configuration file. Ex.: cnot.cfg")
	}
	cfgPath := flag.Arg(0)

	cfg, err := config.Parse(cfgPath)
	if err != nil {
		chk.Panic("%v", err)
	}

	ctx := runtime.New()
	eng, err := buildEngine(cfg, ctx)
	if err != nil {
		chk.Panic("%v", err)
	}

	if ctx.IsRoot() {
		if err := writeConfigLog("config_log.dat", cfg); err != nil {
			chk.Panic("%v", err)
		}
	}

	start := time.Now()
	switch cfg.RunType {
	case config.RunSimulation:
		runSimulation(eng)
	case config.RunGradient:
		runGradientCheck(eng)
	case config.RunEvalControls:
		runEvalControls(eng)
	case config.RunOptimization:
		runOptimization(eng)
	default:
		chk.Panic("unknown runtype %v", cfg.RunType)
	}
	if ctx.IsRoot() {
		if err := writeTiming("timing.dat", time.Since(start).Seconds()); err != nil {
			chk.Panic("%v", err)
		}
	}
}

// runSimulation performs a single forward sweep per initial condition and
// reports the resulting terminal cost, mirroring a one-shot fem.Run with
// no optimisation loop. The per-initial-condition trajectories are
// persisted to rho_Re/rho_Im.iinit<i>.dat from the root rank (§6 "Output
// files").
func runSimulation(eng *Engine) {
	theta := initTheta(eng.Cfg, eng.Oscs)
	f := eng.Prob.EvalF(theta)
	if eng.Prob.Ctx.IsRoot() {
		io.Pf("terminal cost J = %v\n", f)
		if err := dumpTrajectories(eng, theta); err != nil {
			chk.Panic("%v", err)
		}
	}
}

// dumpTrajectories replays the forward sweep for every initial condition
// (outside Problem.EvalF's cached, rank-partitioned path, since the output
// files are a root-only diagnostic rather than part of the objective) and
// writes each one's time-stamped trajectory.
func dumpTrajectories(eng *Engine, theta []float64) error {
	ninit := eng.Tgt.NumInitialConditions()
	for i := 0; i < ninit; i++ {
		x0 := eng.Tgt.PrepareInitialState(i)
		ts := []float64{0}
		states := [][]float64{append([]float64(nil), x0...)}
		_, err := eng.Step.ForwardSweep(x0, theta, func(n int, t float64, x []float64) {
			ts = append(ts, t)
			states = append(states, append([]float64(nil), x...))
		})
		if err != nil {
			if _, ok := err.(*stepper.NonConvergence); !ok {
				return err
			}
			io.Pf("warning: %v\n", err)
		}
		if err := writeTrajectory(i, ts, states); err != nil {
			return err
		}
	}
	return nil
}

// runGradientCheck evaluates the adjoint gradient once at θ=0 and reports
// its norm, the cheapest possible smoke test that the forward/reverse
// sweeps agree in shape (a full finite-difference check lives in the
// optim package's own tests).
func runGradientCheck(eng *Engine) {
	theta := make([]float64, eng.Prob.NParams)
	gBar := make([]float64, eng.Prob.NParams)
	f := eng.Prob.EvalG(theta, gBar)
	if eng.Prob.Ctx.IsRoot() {
		var norm float64
		for _, v := range gBar {
			norm += v * v
		}
		io.Pf("J = %v, |dJ/dtheta| = %v\n", f, math.Sqrt(norm))
	}
}

// runEvalControls dumps each oscillator's carrier-modulated drive envelope
// at the configured θ to stdout, one line per time step, for external
// plotting, and persists the same data to control<q>.dat (§6 "Output
// files") from the root rank.
func runEvalControls(eng *Engine) {
	theta := initTheta(eng.Cfg, eng.Oscs)
	dt := eng.Cfg.Dt
	for n := 0; n <= eng.Cfg.Ntime; n++ {
		t := float64(n) * dt
		fmt.Printf("%v", t)
		for _, o := range eng.Oscs {
			f, g := o.EvalControl(t, theta, false)
			fmt.Printf(" %v %v", f, g)
		}
		fmt.Println()
	}
	if eng.Prob.Ctx.IsRoot() {
		if err := writeControlFiles(eng, theta); err != nil {
			chk.Panic("%v", err)
		}
	}
}

// runOptimization wires the Problem's EvalF/EvalG into an L-BFGS descent
// driven by gonum/optimize, reporting the final cost and iteration count
// from the root rank only.
func runOptimization(eng *Engine) {
	p := eng.Prob
	theta0 := initTheta(eng.Cfg, eng.Oscs)

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			return p.EvalF(x)
		},
		Grad: func(grad, x []float64) {
			p.EvalG(x, grad)
		},
	}

	settings := &optimize.Settings{
		GradientThreshold: eng.Cfg.OptimTolGrad,
		MajorIterations:   eng.Cfg.OptimMaxIter,
	}

	result, err := optimize.Minimize(problem, theta0, settings, &optimize.LBFGS{})
	if err != nil && result == nil {
		chk.Panic("optimization failed: %v", err)
	}
	if p.Ctx.IsRoot() {
		io.Pf("optimization finished: status=%v J=%v iterations=%d\n", result.Status, result.F, result.Iterations)

		gFinal := make([]float64, len(result.X))
		p.EvalG(result.X, gFinal)
		var gNorm float64
		for _, v := range gFinal {
			gNorm += v * v
		}
		gNorm = math.Sqrt(gNorm)

		if err := writeParams("params.dat", result.X); err != nil {
			chk.Panic("%v", err)
		}
		if err := writeOptimHistory("optim_history.dat", result.Iterations, result.F, gNorm); err != nil {
			chk.Panic("%v", err)
		}
	}
}
