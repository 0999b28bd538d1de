// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package harness runs proving scenarios end to end: keys, proof,
// normalization of the snarkjs output, calldata formatting and a call into
// the verifier contract, followed by a zero-filled call that must fail.
package harness

import (
	"context"
	"fmt"
	"math/big"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/logical-mechanism/zkharness/internal/bigjson"
	"github.com/logical-mechanism/zkharness/internal/calldata"
	"github.com/logical-mechanism/zkharness/internal/circuit"
	"github.com/logical-mechanism/zkharness/internal/config"
	"github.com/logical-mechanism/zkharness/internal/keys"
	"github.com/logical-mechanism/zkharness/internal/prover"
	"github.com/logical-mechanism/zkharness/internal/verifier"
)

// Stages timed in a Report.
const (
	StageSetup  = "setup"
	StageProve  = "prove"
	StageVerify = "verify"
)

// Report is the outcome of one scenario.
type Report struct {
	Scenario        string
	Circuit         string
	Protocol        circuit.Protocol
	Output          []*big.Int
	ValidAccepted   bool
	InvalidRejected bool
	Durations       map[string]time.Duration
}

func (r *Report) Passed() bool {
	return r.ValidAccepted && r.InvalidRejected
}

// Runner executes scenarios. It is safe for concurrent use.
type Runner struct {
	cfg     config.Config
	log     zerolog.Logger
	metrics *Metrics

	mu       sync.Mutex
	keyLocks map[string]*sync.Mutex
}

// New returns a runner. A nil metrics gets a fresh registry.
func New(cfg *config.Config, logger zerolog.Logger, metrics *Metrics) *Runner {
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Runner{
		cfg:      *cfg,
		log:      logger,
		metrics:  metrics,
		keyLocks: make(map[string]*sync.Mutex),
	}
}

func (r *Runner) Metrics() *Metrics { return r.metrics }

// KeysDir is where the keys of a circuit/protocol pair are cached.
func KeysDir(artifactsDir string, c circuit.Circuit, p circuit.Protocol) string {
	return filepath.Join(artifactsDir, c.Name(), string(p))
}

// LoadOrSetup returns the cached keys in dir, running the setup and saving
// its artifacts (including verifier.sol) on first use.
func LoadOrSetup(dir string, c circuit.Circuit, p circuit.Protocol) (*keys.Keys, bool, error) {
	if keys.Exist(dir) {
		k, err := keys.Load(dir, p)
		return k, true, err
	}
	ccs, err := circuit.Compile(c, p)
	if err != nil {
		return nil, false, err
	}
	k, err := keys.Setup(ccs, p)
	if err != nil {
		return nil, false, err
	}
	if err := keys.Save(dir, k); err != nil {
		return nil, false, err
	}
	if err := keys.ExportSolidityFile(k, dir); err != nil {
		return nil, false, err
	}
	return k, false, nil
}

func (r *Runner) keys(s Scenario) (*keys.Keys, bool, error) {
	dir := KeysDir(r.cfg.ArtifactsDir, s.Circuit, s.Protocol)

	r.mu.Lock()
	l, ok := r.keyLocks[dir]
	if !ok {
		l = new(sync.Mutex)
		r.keyLocks[dir] = l
	}
	r.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return LoadOrSetup(dir, s.Circuit, s.Protocol)
}

// Run executes one scenario. A proof the verifier answers wrongly is a
// failed report, not an error; errors mean the run itself broke.
func (r *Runner) Run(ctx context.Context, s Scenario) (*Report, error) {
	log := r.log.With().Str("scenario", s.Name).Logger()
	rep := &Report{
		Scenario:  s.Name,
		Circuit:   s.Circuit.Name(),
		Protocol:  s.Protocol,
		Durations: make(map[string]time.Duration, 3),
	}
	protocol := string(s.Protocol)
	stage := func(name string, start time.Time) {
		d := time.Since(start)
		rep.Durations[name] = d
		r.metrics.observeStage(protocol, name, d)
	}

	start := time.Now()
	k, cached, err := r.keys(s)
	if err != nil {
		return nil, fmt.Errorf("keys: %w", err)
	}
	contract, err := verifier.Deploy(k)
	if err != nil {
		return nil, fmt.Errorf("deploy verifier: %w", err)
	}
	stage(StageSetup, start)
	log.Debug().Bool("cached", cached).Dur("took", rep.Durations[StageSetup]).Msg("verifier deployed")

	start = time.Now()
	var opts []prover.Option
	if r.cfg.Hex {
		opts = append(opts, prover.WithHex())
	}
	opts = append(opts, prover.WithLogger(log))
	res, err := prover.Prove(ctx, s.Circuit, k, s.Inputs, opts...)
	if err != nil {
		return nil, err
	}
	stage(StageProve, start)
	rep.Output = res.Signals
	log.Info().Str("output", JoinInts(res.Signals)).Msg("proof generated")

	start = time.Now()
	proof, err := bigjson.DecodeUnstringify(res.Proof)
	if err != nil {
		return nil, fmt.Errorf("normalize proof: %w", err)
	}
	signals, err := bigjson.DecodeUnstringify(res.Public)
	if err != nil {
		return nil, fmt.Errorf("normalize public signals: %w", err)
	}

	if rep.ValidAccepted, err = Verify(ctx, contract, proof, signals); err != nil {
		return nil, err
	}
	accepted, err := VerifyZero(ctx, contract)
	if err != nil {
		return nil, err
	}
	rep.InvalidRejected = !accepted
	stage(StageVerify, start)

	r.metrics.incVerification(protocol, "valid", rep.ValidAccepted)
	r.metrics.incVerification(protocol, "zero", !rep.InvalidRejected)
	r.metrics.incScenario(rep.Circuit, protocol, rep.Passed())

	ev := log.Info()
	if !rep.Passed() {
		ev = log.Warn()
	}
	ev.Bool("valid_accepted", rep.ValidAccepted).
		Bool("invalid_rejected", rep.InvalidRejected).
		Msg("scenario finished")
	return rep, nil
}

// Verify formats a normalized proof and its public signals as calldata, the
// way snarkjs exportSolidityCallData does, and sends it to the contract.
func Verify(ctx context.Context, contract *verifier.Contract, proof, signals any) (bool, error) {
	switch contract.Protocol() {
	case circuit.Groth16:
		text, err := calldata.Groth16(proof, signals)
		if err != nil {
			return false, err
		}
		argv, err := calldata.Argv(text)
		if err != nil {
			return false, err
		}
		call, err := calldata.ParseGroth16(argv)
		if err != nil {
			return false, err
		}
		return contract.VerifyGroth16(ctx, call)
	case circuit.Plonk:
		text, err := calldata.Plonk(proof, signals)
		if err != nil {
			return false, err
		}
		call, err := calldata.ParsePlonk(text)
		if err != nil {
			return false, err
		}
		return contract.VerifyPlonk(ctx, call)
	}
	return false, fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, contract.Protocol())
}

// VerifyZero sends an all-zero proof shaped for the contract. A sound
// verifier answers false.
func VerifyZero(ctx context.Context, contract *verifier.Contract) (bool, error) {
	switch contract.Protocol() {
	case circuit.Groth16:
		return contract.VerifyGroth16(ctx, calldata.ZeroGroth16(contract.NbPublic()))
	case circuit.Plonk:
		return contract.VerifyPlonk(ctx, calldata.ZeroPlonk(contract.NbPublic()))
	}
	return false, fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, contract.Protocol())
}

// RunAll runs the scenarios with at most cfg.Concurrency in flight. Reports
// come back in input order. The first error cancels the remaining runs.
func (r *Runner) RunAll(ctx context.Context, scenarios []Scenario) ([]*Report, error) {
	reports := make([]*Report, len(scenarios))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(r.cfg.Concurrency, 1))
	for i, s := range scenarios {
		g.Go(func() error {
			rep, err := r.Run(gctx, s)
			if err != nil {
				return fmt.Errorf("%s: %w", s.Name, err)
			}
			reports[i] = rep
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// JoinInts renders xs as comma-separated decimals.
func JoinInts(xs []*big.Int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = x.String()
	}
	return strings.Join(parts, ",")
}
