// Copyright 2016 The Gofem Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// package config parses the line-oriented "key=value" configuration file
// (§6) into a validated Config struct. The *shape* (typed struct,
// field-by-field defaults, chk.Err on bad keys) follows gofem's
// inp.Data/inp.SolverData; the line format itself uses key=value with
// '#' comments rather than inp's JSON decoding.
package config

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/cpmech/gosl/chk"
)

// CollapseType selects which Lindblad collapse channels are active.
type CollapseType int

const (
	CollapseNone CollapseType = iota
	CollapseDecay
	CollapseDephase
	CollapseBoth
)

// RunType selects cmd/quandary's top-level dispatch (§6 runtype).
type RunType int

const (
	RunSimulation RunType = iota
	RunGradient
	RunOptimization
	RunEvalControls
)

// TimeStepperKind selects the time integrator (§6 timestepper): IMR/IMR4/
// IMR8 pick the implicit-midpoint composition order; ExplicitEuler ("EE")
// parses but has no integrator in package stepper (see buildEngine) since
// the discrete-adjoint reverse sweep is built entirely around the
// implicit-midpoint sub-step.
type TimeStepperKind int

const (
	IMR TimeStepperKind = iota
	IMR4
	IMR8
	ExplicitEuler
)

// ObjectiveKind mirrors target.Objective as a configuration-file string tag.
type ObjectiveKind int

const (
	Jfrobenius ObjectiveKind = iota
	Jtrace
	Jmeasure
)

// UDEModel selects which generator terms are simulated (§6 UDEmodel).
type UDEModel int

const (
	UDENone UDEModel = iota
	UDEHamiltonian
	UDELindblad
	UDEBoth
)

// PiPulseSpec is one parsed apply_pipulse quadruple (§6).
type PiPulseSpec struct {
	Oscillator         int
	TStart, TStop      float64
	AmpP, AmpQ         float64
}

// ControlInit is the parsed control_initialization<q> directive.
type ControlInit struct {
	Kind  string // "random", "constant", "file"
	Sigma float64
	Value float64
	Path  string
}

// Config is the validated, typed result of parsing a §6 configuration file.
type Config struct {
	Nlevels    []int
	Nessential []int
	Ntime      int
	Dt         float64

	TransFreq []float64
	RotFreq   []float64
	SelfKerr  []float64
	CrossKerr map[[2]int]float64
	Jkl       map[[2]int]float64

	CarrierFrequency map[int][]float64
	ControlSegments  map[int][]string // raw "spline,N,t0,t1" / "step,ampP,ampQ,ramp" specs
	ControlInits     map[int]ControlInit

	InitialCondition string
	GateRotFreq      []float64

	CollapseType CollapseType
	DecayTime    []float64
	DephaseTime  []float64

	LinSolverType   string
	LinSolverMaxIter int

	RunType     RunType
	TimeStepper TimeStepperKind

	OptimObjective         ObjectiveKind
	OptimTarget            string // "gate,CNOT" | "pure,m" | "file,path"
	OptimRegulCoeff        float64
	OptimPenaltyCoeff      float64
	OptimPenaltyDpdmCoeff  float64
	OptimPenaltyEnergyCoeff float64
	OptimMaxIter           int
	OptimTolGrad           float64

	RandSeed     int64
	ApplyPiPulse []PiPulseSpec
	UseMatFree   bool
	HamiltonianFile string
	UDEModel     UDEModel

	raw map[string]string
}

var indexedKey = regexp.MustCompile(`^([a-zA-Z_]+)(\d+)$`)

// Parse reads and validates a §6 configuration file.
func Parse(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, chk.Err("config: cannot open %q: %v", path, err)
	}
	defer f.Close()
	return parseReader(f, path)
}

func parseReader(f *os.File, path string) (*Config, error) {
	raw := make(map[string]string)
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if h := strings.IndexByte(line, '#'); h >= 0 {
			line = line[:h]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		eq := strings.IndexByte(line, '=')
		if eq < 0 {
			return nil, chk.Err("config: %q line %d: missing '=' in %q", path, lineNo, line)
		}
		key := strings.TrimSpace(line[:eq])
		val := strings.TrimSpace(line[eq+1:])
		raw[key] = val
	}
	if err := sc.Err(); err != nil {
		return nil, chk.Err("config: %q: %v", path, err)
	}
	return build(raw)
}

// Raw returns the parsed "key = value" pairs as read from the
// configuration file, for callers that persist a run's settings verbatim
// (§6 "Output files" config_log.dat).
func (c *Config) Raw() map[string]string {
	return c.raw
}

func build(raw map[string]string) (*Config, error) {
	c := &Config{
		raw:              raw,
		CrossKerr:        make(map[[2]int]float64),
		Jkl:              make(map[[2]int]float64),
		CarrierFrequency: make(map[int][]float64),
		ControlSegments:  make(map[int][]string),
		ControlInits:     make(map[int]ControlInit),
	}

	var err error
	if c.Nlevels, err = intListOpt(raw, "nlevels", nil); err != nil {
		return nil, err
	}
	if c.Nessential, err = intListOpt(raw, "nessential", c.Nlevels); err != nil {
		return nil, err
	}
	if c.Ntime, err = intOpt(raw, "ntime", 0); err != nil {
		return nil, err
	}
	if c.Dt, err = floatOpt(raw, "dt", 0); err != nil {
		return nil, err
	}
	if c.TransFreq, err = floatListOpt(raw, "transfreq", nil); err != nil {
		return nil, err
	}
	if c.RotFreq, err = floatListOpt(raw, "rotfreq", nil); err != nil {
		return nil, err
	}
	if c.SelfKerr, err = floatListOpt(raw, "selfkerr", nil); err != nil {
		return nil, err
	}
	if c.GateRotFreq, err = floatListOpt(raw, "gate_rot_freq", nil); err != nil {
		return nil, err
	}
	if c.DecayTime, err = floatListOpt(raw, "decay_time", nil); err != nil {
		return nil, err
	}
	if c.DephaseTime, err = floatListOpt(raw, "dephase_time", nil); err != nil {
		return nil, err
	}
	if v, ok := raw["crosskerr"]; ok {
		if c.CrossKerr, err = pairMap(v); err != nil {
			return nil, err
		}
	}
	if v, ok := raw["Jkl"]; ok {
		if c.Jkl, err = pairMap(v); err != nil {
			return nil, err
		}
	}

	c.InitialCondition = raw["initialcondition"]
	c.LinSolverType = stringOpt(raw, "linearsolver_type", "gmres")
	if c.LinSolverMaxIter, err = intOpt(raw, "linearsolver_maxiter", 50); err != nil {
		return nil, err
	}

	if err = c.parseCollapseType(raw); err != nil {
		return nil, err
	}
	if err = c.parseRunType(raw); err != nil {
		return nil, err
	}
	if err = c.parseTimeStepper(raw); err != nil {
		return nil, err
	}
	if err = c.parseObjective(raw); err != nil {
		return nil, err
	}
	c.OptimTarget = raw["optim_target"]
	if c.OptimRegulCoeff, err = floatOpt(raw, "optim_regul_coeff", 0); err != nil {
		return nil, err
	}
	if c.OptimPenaltyCoeff, err = floatOpt(raw, "optim_penalty_coeff", 0); err != nil {
		return nil, err
	}
	if c.OptimPenaltyDpdmCoeff, err = floatOpt(raw, "optim_penalty_dpdm_coeff", 0); err != nil {
		return nil, err
	}
	if c.OptimPenaltyEnergyCoeff, err = floatOpt(raw, "optim_penalty_energy_coeff", 0); err != nil {
		return nil, err
	}
	if c.OptimMaxIter, err = intOpt(raw, "optim_maxiter", 200); err != nil {
		return nil, err
	}
	if c.OptimTolGrad, err = floatOpt(raw, "optim_tol_grad", 1e-6); err != nil {
		return nil, err
	}
	var seed int
	if seed, err = intOpt(raw, "rand_seed", 0); err != nil {
		return nil, err
	}
	c.RandSeed = int64(seed)
	if c.UseMatFree, err = boolOpt(raw, "usematfree", true); err != nil {
		return nil, err
	}
	c.HamiltonianFile = raw["hamiltonian_file"]
	if err = c.parseUDEModel(raw); err != nil {
		return nil, err
	}
	if c.ApplyPiPulse, err = parsePiPulses(raw["apply_pipulse"]); err != nil {
		return nil, err
	}

	for key, val := range raw {
		m := indexedKey.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		base, idxStr := m[1], m[2]
		idx, cerr := strconv.Atoi(idxStr)
		if cerr != nil {
			continue
		}
		switch base {
		case "carrier_frequency":
			fl, ferr := parseFloatList(val)
			if ferr != nil {
				return nil, chk.Err("config: %s: %v", key, ferr)
			}
			c.CarrierFrequency[idx] = fl
		case "control_segments":
			c.ControlSegments[idx] = splitSpecs(val)
		case "control_initialization":
			ci, cierr := parseControlInit(val)
			if cierr != nil {
				return nil, chk.Err("config: %s: %v", key, cierr)
			}
			c.ControlInits[idx] = ci
		}
	}

	return c, nil
}

func (c *Config) parseCollapseType(raw map[string]string) error {
	switch stringOpt(raw, "collapse_type", "none") {
	case "none":
		c.CollapseType = CollapseNone
	case "decay":
		c.CollapseType = CollapseDecay
	case "dephase":
		c.CollapseType = CollapseDephase
	case "both":
		c.CollapseType = CollapseBoth
	default:
		return chk.Err("config: unknown collapse_type %q", raw["collapse_type"])
	}
	return nil
}

func (c *Config) parseRunType(raw map[string]string) error {
	switch stringOpt(raw, "runtype", "simulation") {
	case "simulation":
		c.RunType = RunSimulation
	case "gradient":
		c.RunType = RunGradient
	case "optimization":
		c.RunType = RunOptimization
	case "evalcontrols":
		c.RunType = RunEvalControls
	default:
		return chk.Err("config: unknown runtype %q", raw["runtype"])
	}
	return nil
}

func (c *Config) parseTimeStepper(raw map[string]string) error {
	switch stringOpt(raw, "timestepper", "IMR") {
	case "IMR":
		c.TimeStepper = IMR
	case "IMR4":
		c.TimeStepper = IMR4
	case "IMR8":
		c.TimeStepper = IMR8
	case "EE":
		c.TimeStepper = ExplicitEuler
	default:
		return chk.Err("config: unknown timestepper %q", raw["timestepper"])
	}
	return nil
}

func (c *Config) parseObjective(raw map[string]string) error {
	switch stringOpt(raw, "optim_objective", "Jfrobenius") {
	case "Jfrobenius":
		c.OptimObjective = Jfrobenius
	case "Jtrace":
		c.OptimObjective = Jtrace
	case "Jmeasure":
		c.OptimObjective = Jmeasure
	default:
		return chk.Err("config: unknown optim_objective %q", raw["optim_objective"])
	}
	return nil
}

func (c *Config) parseUDEModel(raw map[string]string) error {
	switch stringOpt(raw, "UDEmodel", "hamiltonian") {
	case "none":
		c.UDEModel = UDENone
	case "hamiltonian":
		c.UDEModel = UDEHamiltonian
	case "lindblad":
		c.UDEModel = UDELindblad
	case "both":
		c.UDEModel = UDEBoth
	default:
		return chk.Err("config: unknown UDEmodel %q", raw["UDEmodel"])
	}
	return nil
}

func parsePiPulses(val string) ([]PiPulseSpec, error) {
	if val == "" {
		return nil, nil
	}
	var out []PiPulseSpec
	for _, spec := range splitSpecs(val) {
		fields := strings.Split(spec, ":")
		if len(fields) != 5 {
			return nil, chk.Err("config: apply_pipulse entry %q must have 5 colon-separated fields", spec)
		}
		osc, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, err
		}
		nums := make([]float64, 4)
		for i := 0; i < 4; i++ {
			nums[i], err = strconv.ParseFloat(strings.TrimSpace(fields[i+1]), 64)
			if err != nil {
				return nil, err
			}
		}
		out = append(out, PiPulseSpec{Oscillator: osc, TStart: nums[0], TStop: nums[1], AmpP: nums[2], AmpQ: nums[3]})
	}
	return out, nil
}

func parseControlInit(val string) (ControlInit, error) {
	fields := strings.Split(val, ",")
	if len(fields) < 2 {
		return ControlInit{}, chk.Err("config: control_initialization entry %q needs at least 2 fields", val)
	}
	kind := strings.TrimSpace(fields[0])
	ci := ControlInit{Kind: kind}
	var err error
	switch kind {
	case "random":
		ci.Sigma, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	case "constant":
		ci.Value, err = strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
	case "file":
		ci.Path = strings.TrimSpace(fields[1])
	default:
		return ControlInit{}, chk.Err("config: unknown control_initialization kind %q", kind)
	}
	return ci, err
}

// splitSpecs splits a ';'-separated list of comma-formatted specs (one per
// carrier/segment), tolerating a single spec with no ';'.
func splitSpecs(val string) []string {
	if val == "" {
		return nil
	}
	parts := strings.Split(val, ";")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

func pairMap(val string) (map[[2]int]float64, error) {
	m := make(map[[2]int]float64)
	for _, entry := range splitSpecs(val) {
		fields := strings.Split(entry, ":")
		if len(fields) != 3 {
			return nil, chk.Err("config: pair entry %q must be \"p:q:value\"", entry)
		}
		p, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			return nil, err
		}
		q, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil {
			return nil, err
		}
		m[[2]int{p, q}] = v
	}
	return m, nil
}

func stringOpt(raw map[string]string, key, def string) string {
	if v, ok := raw[key]; ok {
		return v
	}
	return def
}

func intOpt(raw map[string]string, key string, def int) (int, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, chk.Err("config: %s: %v", key, err)
	}
	return n, nil
}

func floatOpt(raw map[string]string, key string, def float64) (float64, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, chk.Err("config: %s: %v", key, err)
	}
	return f, nil
}

func boolOpt(raw map[string]string, key string, def bool) (bool, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, chk.Err("config: %s: %v", key, err)
	}
	return b, nil
}

func parseIntList(val string) ([]int, error) {
	var out []int
	for _, f := range strings.Split(val, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func parseFloatList(val string) ([]float64, error) {
	var out []float64
	for _, f := range strings.Split(val, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		x, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, x)
	}
	return out, nil
}

func intListOpt(raw map[string]string, key string, def []int) ([]int, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	l, err := parseIntList(v)
	if err != nil {
		return nil, chk.Err("config: %s: %v", key, err)
	}
	return l, nil
}

func floatListOpt(raw map[string]string, key string, def []float64) ([]float64, error) {
	v, ok := raw[key]
	if !ok {
		return def, nil
	}
	l, err := parseFloatList(v)
	if err != nil {
		return nil, chk.Err("config: %s: %v", key, err)
	}
	return l, nil
}
