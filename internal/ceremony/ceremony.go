// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package ceremony runs the multi-party computation (MPC) setup for the
// Groth16 keys of a harness circuit on BN254. It wraps gnark's mpcsetup
// package in a file-based workflow with two phases:
//   - Phase 1 (Powers of Tau): circuit-independent, produces SRS commons
//   - Phase 2: circuit-specific, produces the final proving and verifying keys
//
// A finalized ceremony directory holds ccs.bin, pk.bin and vk.bin and can be
// passed to keys.Load as is.
package ceremony

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/groth16/bn254/mpcsetup"
	"github.com/consensys/gnark/constraint"
	cs "github.com/consensys/gnark/constraint/bn254"

	"github.com/logical-mechanism/zkharness/internal/circuit"
	"github.com/logical-mechanism/zkharness/internal/keys"
)

const commonsFile = "commons.bin"

var (
	ErrAlreadyInitialized  = errors.New("ceremony already initialized")
	ErrNoContributions     = errors.New("not enough contributions")
	ErrInvalidContribution = errors.New("invalid contribution")
)

// Info describes a freshly initialized ceremony.
type Info struct {
	Circuit     string
	Constraints int
	DomainSize  uint64
}

// findContributions returns sorted file paths matching phase{N}_NNNN.bin in dir.
func findContributions(dir string, phase int) ([]string, error) {
	prefix := fmt.Sprintf("phase%d_", phase)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var paths []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bin") {
			paths = append(paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// latestContribution returns the path and index of the highest-numbered contribution.
func latestContribution(dir string, phase int) (string, int, error) {
	paths, err := findContributions(dir, phase)
	if err != nil {
		return "", 0, err
	}
	if len(paths) == 0 {
		return "", 0, fmt.Errorf("%w: no phase %d files in %s", ErrNoContributions, phase, dir)
	}
	last := paths[len(paths)-1]
	base := filepath.Base(last)
	numStr := strings.TrimSuffix(strings.TrimPrefix(base, fmt.Sprintf("phase%d_", phase)), ".bin")
	idx, err := strconv.Atoi(numStr)
	if err != nil {
		return "", 0, fmt.Errorf("parse contribution index from %s: %w", base, err)
	}
	return last, idx, nil
}

func contributionPath(dir string, phase, index int) string {
	return filepath.Join(dir, fmt.Sprintf("phase%d_%04d.bin", phase, index))
}

// fileHash computes the SHA-256 hash of a file and returns it as a hex string.
// Contributors publish it so others can check the transcript.
func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func save(path string, w io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	if _, err := w.WriteTo(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func load[T any, PT interface {
	*T
	io.ReaderFrom
}](path string) (*T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	v := PT(new(T))
	if _, err := v.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return (*T)(v), nil
}

// loadAll loads every contribution after the initial one.
func loadAll[T any, PT interface {
	*T
	io.ReaderFrom
}](dir string, phase int) ([]*T, error) {
	paths, err := findContributions(dir, phase)
	if err != nil {
		return nil, err
	}
	if len(paths) < 2 {
		return nil, fmt.Errorf("%w: need at least 1 beyond the initial (found %d phase %d files)", ErrNoContributions, len(paths), phase)
	}
	out := make([]*T, 0, len(paths))
	for i, p := range paths {
		v, err := load[T, PT](p)
		if err != nil {
			return nil, fmt.Errorf("load phase%d contribution %d: %w", phase, i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func loadR1CS(path string) (*cs.R1CS, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	ccs := groth16.NewCS(ecc.BN254)
	if _, err := ccs.ReadFrom(f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	r1cs, ok := ccs.(*cs.R1CS)
	if !ok {
		return nil, fmt.Errorf("CCS is not *bn254.R1CS: %T", ccs)
	}
	return r1cs, nil
}

// domainSize computes the FFT domain size from a constraint system.
func domainSize(ccs constraint.ConstraintSystem) uint64 {
	return ecc.NextPowerOfTwo(uint64(ccs.GetNbConstraints()))
}

// Init compiles the circuit, saves ccs.bin, and creates the initial Phase1 accumulator.
func Init(dir string, c circuit.Circuit, force bool) (*Info, error) {
	if _, err := os.Stat(filepath.Join(dir, keys.CCSFile)); err == nil && !force {
		return nil, fmt.Errorf("%w in %s (use --force to overwrite)", ErrAlreadyInitialized, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir: %w", err)
	}

	ccs, err := circuit.Compile(c, circuit.Groth16)
	if err != nil {
		return nil, err
	}
	if err := save(filepath.Join(dir, keys.CCSFile), ccs); err != nil {
		return nil, err
	}

	n := domainSize(ccs)
	if err := save(contributionPath(dir, 1, 0), mpcsetup.NewPhase1(n)); err != nil {
		return nil, err
	}
	return &Info{Circuit: c.Name(), Constraints: ccs.GetNbConstraints(), DomainSize: n}, nil
}

// ContributePhase1 loads the latest Phase1 accumulator, contributes, and
// saves the result. It returns the new index and the file hash.
func ContributePhase1(dir string) (int, string, error) {
	return contribute[mpcsetup.Phase1](dir, 1, func(p *mpcsetup.Phase1) { p.Contribute() })
}

// ContributePhase2 is ContributePhase1 for the circuit-specific phase.
func ContributePhase2(dir string) (int, string, error) {
	return contribute[mpcsetup.Phase2](dir, 2, func(p *mpcsetup.Phase2) { p.Contribute() })
}

func contribute[T any, PT interface {
	*T
	io.ReaderFrom
	io.WriterTo
}](dir string, phase int, add func(*T)) (int, string, error) {
	latestPath, idx, err := latestContribution(dir, phase)
	if err != nil {
		return 0, "", err
	}
	acc, err := load[T, PT](latestPath)
	if err != nil {
		return 0, "", fmt.Errorf("load latest phase%d: %w", phase, err)
	}

	add(acc)

	nextIdx := idx + 1
	nextPath := contributionPath(dir, phase, nextIdx)
	if err := save(nextPath, PT(acc)); err != nil {
		return 0, "", err
	}
	hash, err := fileHash(nextPath)
	if err != nil {
		return nextIdx, "", fmt.Errorf("hash contribution: %w", err)
	}
	return nextIdx, hash, nil
}

// VerifyPhase1 checks every Phase1 contribution against its predecessor and
// returns how many were verified.
func VerifyPhase1(dir string) (int, error) {
	all, err := loadAll[mpcsetup.Phase1](dir, 1)
	if err != nil {
		return 0, err
	}
	for i := 1; i < len(all); i++ {
		if err := all[i-1].Verify(all[i]); err != nil {
			return i - 1, fmt.Errorf("%w: phase1 #%d: %w", ErrInvalidContribution, i, err)
		}
	}
	return len(all) - 1, nil
}

// VerifyPhase2 checks every Phase2 contribution against its predecessor.
func VerifyPhase2(dir string) (int, error) {
	all, err := loadAll[mpcsetup.Phase2](dir, 2)
	if err != nil {
		return 0, err
	}
	for i := 1; i < len(all); i++ {
		if err := all[i-1].Verify(all[i]); err != nil {
			return i - 1, fmt.Errorf("%w: phase2 #%d: %w", ErrInvalidContribution, i, err)
		}
	}
	return len(all) - 1, nil
}

// FinalizePhase1 verifies all Phase1 contributions, seals with the beacon,
// produces SRS commons, and initializes Phase2.
func FinalizePhase1(dir string, beacon []byte) error {
	r1cs, err := loadR1CS(filepath.Join(dir, keys.CCSFile))
	if err != nil {
		return fmt.Errorf("load ccs: %w", err)
	}

	all, err := loadAll[mpcsetup.Phase1](dir, 1)
	if err != nil {
		return err
	}
	commons, err := mpcsetup.VerifyPhase1(domainSize(r1cs), beacon, all[1:]...)
	if err != nil {
		return fmt.Errorf("verify phase1: %w", err)
	}
	if err := save(filepath.Join(dir, commonsFile), &commons); err != nil {
		return err
	}

	var p2 mpcsetup.Phase2
	p2.Initialize(r1cs, &commons)
	return save(contributionPath(dir, 2, 0), &p2)
}

// FinalizePhase2 verifies all Phase2 contributions, seals with the beacon,
// and writes pk.bin, vk.bin and the Solidity verifier.
func FinalizePhase2(dir string, beacon []byte) (*keys.Keys, error) {
	r1cs, err := loadR1CS(filepath.Join(dir, keys.CCSFile))
	if err != nil {
		return nil, fmt.Errorf("load ccs: %w", err)
	}
	commons, err := load[mpcsetup.SrsCommons](filepath.Join(dir, commonsFile))
	if err != nil {
		return nil, fmt.Errorf("load commons: %w", err)
	}
	all, err := loadAll[mpcsetup.Phase2](dir, 2)
	if err != nil {
		return nil, err
	}

	pk, vk, err := mpcsetup.VerifyPhase2(r1cs, commons, beacon, all[1:]...)
	if err != nil {
		return nil, fmt.Errorf("verify phase2: %w", err)
	}

	k := &keys.Keys{Protocol: circuit.Groth16, CCS: r1cs, Groth16PK: pk, Groth16VK: vk}
	if err := keys.Save(dir, k); err != nil {
		return nil, err
	}
	if err := keys.ExportSolidityFile(k, dir); err != nil {
		return nil, err
	}
	return k, nil
}
