// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(tst *testing.T, body string) string {
	dir := tst.TempDir()
	path := filepath.Join(dir, "quandary.cfg")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		tst.Fatalf("cannot write temp config: %v", err)
	}
	return path
}

func TestParseBasicScalarsAndLists(tst *testing.T) {
	path := writeTempConfig(tst, `
# two-qubit CNOT gate run
nlevels = 3,3
nessential = 2,2
ntime = 1000
dt = 0.01
transfreq = 4.1, 4.3
rotfreq = 4.1, 4.3
selfkerr = 0.2, 0.21
runtype = optimization
timestepper = IMR4
optim_objective = Jtrace
optim_target = gate,CNOT
optim_regul_coeff = 0.01
`)
	c, err := Parse(path)
	if err != nil {
		tst.Fatalf("parse failed: %v", err)
	}
	if len(c.Nlevels) != 2 || c.Nlevels[0] != 3 || c.Nlevels[1] != 3 {
		tst.Fatalf("nlevels = %v", c.Nlevels)
	}
	if len(c.Nessential) != 2 || c.Nessential[1] != 2 {
		tst.Fatalf("nessential = %v", c.Nessential)
	}
	if c.Ntime != 1000 {
		tst.Fatalf("ntime = %v", c.Ntime)
	}
	if c.Dt != 0.01 {
		tst.Fatalf("dt = %v", c.Dt)
	}
	if c.RunType != RunOptimization {
		tst.Fatalf("runtype = %v", c.RunType)
	}
	if c.TimeStepper != IMR4 {
		tst.Fatalf("timestepper = %v", c.TimeStepper)
	}
	if c.OptimObjective != Jtrace {
		tst.Fatalf("optim_objective = %v", c.OptimObjective)
	}
	if c.OptimTarget != "gate,CNOT" {
		tst.Fatalf("optim_target = %v", c.OptimTarget)
	}
	if c.OptimRegulCoeff != 0.01 {
		tst.Fatalf("optim_regul_coeff = %v", c.OptimRegulCoeff)
	}
}

func TestNessentialDefaultsToNlevels(tst *testing.T) {
	path := writeTempConfig(tst, "nlevels = 2,4\n")
	c, err := Parse(path)
	if err != nil {
		tst.Fatalf("parse failed: %v", err)
	}
	if len(c.Nessential) != 2 || c.Nessential[0] != 2 || c.Nessential[1] != 4 {
		tst.Fatalf("nessential default = %v, want [2 4]", c.Nessential)
	}
}

func TestIndexedKeysPerOscillator(tst *testing.T) {
	path := writeTempConfig(tst, `
carrier_frequency0 = 4.1, 4.3
carrier_frequency1 = 5.0
control_segments0 = spline,4,0,10
control_initialization1 = random,0.01
`)
	c, err := Parse(path)
	if err != nil {
		tst.Fatalf("parse failed: %v", err)
	}
	if got := c.CarrierFrequency[0]; len(got) != 2 || got[0] != 4.1 || got[1] != 4.3 {
		tst.Fatalf("carrier_frequency0 = %v", got)
	}
	if got := c.CarrierFrequency[1]; len(got) != 1 || got[0] != 5.0 {
		tst.Fatalf("carrier_frequency1 = %v", got)
	}
	if got := c.ControlSegments[0]; len(got) != 1 || got[0] != "spline,4,0,10" {
		tst.Fatalf("control_segments0 = %v", got)
	}
	ci := c.ControlInits[1]
	if ci.Kind != "random" || ci.Sigma != 0.01 {
		tst.Fatalf("control_initialization1 = %+v", ci)
	}
}

func TestCommentsAndBlankLinesIgnored(tst *testing.T) {
	path := writeTempConfig(tst, `
# a leading comment
ntime = 10  # trailing comment

# blank line above
dt = 0.5
`)
	c, err := Parse(path)
	if err != nil {
		tst.Fatalf("parse failed: %v", err)
	}
	if c.Ntime != 10 {
		tst.Fatalf("ntime = %v", c.Ntime)
	}
	if c.Dt != 0.5 {
		tst.Fatalf("dt = %v", c.Dt)
	}
}

func TestMissingEqualsIsAnError(tst *testing.T) {
	path := writeTempConfig(tst, "this line has no equals sign\n")
	if _, err := Parse(path); err == nil {
		tst.Fatalf("expected an error for a malformed line")
	}
}

func TestApplyPiPulseAndCrossKerr(tst *testing.T) {
	path := writeTempConfig(tst, `
apply_pipulse = 0:0.0:1.0:3.14:0.0
crosskerr = 0:1:0.002
`)
	c, err := Parse(path)
	if err != nil {
		tst.Fatalf("parse failed: %v", err)
	}
	if len(c.ApplyPiPulse) != 1 {
		tst.Fatalf("apply_pipulse = %v", c.ApplyPiPulse)
	}
	pp := c.ApplyPiPulse[0]
	if pp.Oscillator != 0 || pp.TStop != 1.0 || pp.AmpP != 3.14 {
		tst.Fatalf("apply_pipulse parsed = %+v", pp)
	}
	if v := c.CrossKerr[[2]int{0, 1}]; v != 0.002 {
		tst.Fatalf("crosskerr[0,1] = %v", v)
	}
}
