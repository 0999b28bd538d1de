// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package keys produces, stores and loads the setup artifacts of a circuit:
// the compiled constraint system plus the proving and verifying keys, for
// either Groth16 or PLONK on BN254.
package keys

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/backend/solidity"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/test/unsafekzg"

	"github.com/logical-mechanism/zkharness/internal/circuit"
)

// File names inside an artifacts directory. A finalized ceremony directory
// uses the same names, so it can be loaded directly.
const (
	CCSFile      = "ccs.bin"
	PKFile       = "pk.bin"
	VKFile       = "vk.bin"
	SolidityFile = "verifier.sol"
)

var ErrProtocolMismatch = errors.New("keys do not match protocol")

// Keys bundles a compiled circuit with its keys. Exactly one of the Groth16
// or Plonk key pairs is set, according to Protocol.
type Keys struct {
	Protocol circuit.Protocol
	CCS      constraint.ConstraintSystem

	Groth16PK groth16.ProvingKey
	Groth16VK groth16.VerifyingKey

	PlonkPK plonk.ProvingKey
	PlonkVK plonk.VerifyingKey
}

// NbPublic returns the number of public inputs the verifier expects.
func (k *Keys) NbPublic() int {
	switch {
	case k.Groth16VK != nil:
		return k.Groth16VK.NbPublicWitness()
	case k.PlonkVK != nil:
		return k.PlonkVK.NbPublicWitness()
	}
	return 0
}

// Setup runs the protocol setup on ccs. PLONK uses a KZG SRS generated
// locally with a known toxic waste; those keys are for testing only.
func Setup(ccs constraint.ConstraintSystem, p circuit.Protocol) (*Keys, error) {
	switch p {
	case circuit.Groth16:
		pk, vk, err := groth16.Setup(ccs)
		if err != nil {
			return nil, fmt.Errorf("groth16 setup: %w", err)
		}
		return &Keys{Protocol: p, CCS: ccs, Groth16PK: pk, Groth16VK: vk}, nil
	case circuit.Plonk:
		srs, srsLagrange, err := unsafekzg.NewSRS(ccs)
		if err != nil {
			return nil, fmt.Errorf("kzg srs: %w", err)
		}
		pk, vk, err := plonk.Setup(ccs, srs, srsLagrange)
		if err != nil {
			return nil, fmt.Errorf("plonk setup: %w", err)
		}
		return &Keys{Protocol: p, CCS: ccs, PlonkPK: pk, PlonkVK: vk}, nil
	}
	return nil, fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, p)
}

// Exist checks if all setup files exist in the given directory.
func Exist(dir string) bool {
	for _, name := range []string{CCSFile, PKFile, VKFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// Save writes the compiled constraint system, proving key, and verifying key.
func Save(dir string, k *Keys) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	var pk, vk io.WriterTo
	switch k.Protocol {
	case circuit.Groth16:
		pk, vk = k.Groth16PK, k.Groth16VK
	case circuit.Plonk:
		pk, vk = k.PlonkPK, k.PlonkVK
	default:
		return fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, k.Protocol)
	}
	if k.CCS == nil || pk == nil || vk == nil {
		return fmt.Errorf("%w: %s keys incomplete", ErrProtocolMismatch, k.Protocol)
	}

	if err := writeTo(filepath.Join(dir, CCSFile), k.CCS); err != nil {
		return err
	}
	if err := writeTo(filepath.Join(dir, PKFile), pk); err != nil {
		return err
	}
	return writeTo(filepath.Join(dir, VKFile), vk)
}

// Load reads the artifacts written by Save (or by a finalized ceremony).
func Load(dir string, p circuit.Protocol) (*Keys, error) {
	k := &Keys{Protocol: p}
	var pk, vk io.ReaderFrom
	switch p {
	case circuit.Groth16:
		k.CCS = groth16.NewCS(circuit.Curve)
		k.Groth16PK = groth16.NewProvingKey(circuit.Curve)
		k.Groth16VK = groth16.NewVerifyingKey(circuit.Curve)
		pk, vk = k.Groth16PK, k.Groth16VK
	case circuit.Plonk:
		k.CCS = plonk.NewCS(circuit.Curve)
		k.PlonkPK = plonk.NewProvingKey(circuit.Curve)
		k.PlonkVK = plonk.NewVerifyingKey(circuit.Curve)
		pk, vk = k.PlonkPK, k.PlonkVK
	default:
		return nil, fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, p)
	}

	if err := readFrom(filepath.Join(dir, CCSFile), k.CCS); err != nil {
		return nil, err
	}
	if err := readFrom(filepath.Join(dir, PKFile), pk); err != nil {
		return nil, err
	}
	if err := readFrom(filepath.Join(dir, VKFile), vk); err != nil {
		return nil, err
	}
	return k, nil
}

// LoadVerifyingKey reads only vk.bin, which is all a verifier needs.
func LoadVerifyingKey(dir string, p circuit.Protocol) (*Keys, error) {
	k := &Keys{Protocol: p}
	var vk io.ReaderFrom
	switch p {
	case circuit.Groth16:
		k.Groth16VK = groth16.NewVerifyingKey(circuit.Curve)
		vk = k.Groth16VK
	case circuit.Plonk:
		k.PlonkVK = plonk.NewVerifyingKey(circuit.Curve)
		vk = k.PlonkVK
	default:
		return nil, fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, p)
	}
	if err := readFrom(filepath.Join(dir, VKFile), vk); err != nil {
		return nil, err
	}
	return k, nil
}

// ExportSolidity writes gnark's Solidity verifier contract for the
// verifying key, ready to be deployed on an EVM chain. Its entry points
// are gnark's (verifyProof(uint256[8], uint256[N]) for Groth16,
// Verify(bytes, uint256[]) for PLONK) and take proofs in gnark's
// MarshalSolidity layout, not the snarkjs calldata the harness prints.
func ExportSolidity(k *Keys, w io.Writer, opts ...solidity.ExportOption) error {
	switch k.Protocol {
	case circuit.Groth16:
		if k.Groth16VK == nil {
			return fmt.Errorf("%w: no groth16 verifying key", ErrProtocolMismatch)
		}
		return k.Groth16VK.ExportSolidity(w, opts...)
	case circuit.Plonk:
		if k.PlonkVK == nil {
			return fmt.Errorf("%w: no plonk verifying key", ErrProtocolMismatch)
		}
		return k.PlonkVK.ExportSolidity(w, opts...)
	}
	return fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, k.Protocol)
}

// ExportSolidityFile writes verifier.sol into dir.
func ExportSolidityFile(k *Keys, dir string, opts ...solidity.ExportOption) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.Create(filepath.Join(dir, SolidityFile))
	if err != nil {
		return fmt.Errorf("create %s: %w", SolidityFile, err)
	}
	defer f.Close()
	if err := ExportSolidity(k, f, opts...); err != nil {
		return fmt.Errorf("export solidity: %w", err)
	}
	return nil
}

func writeTo(path string, w io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := w.WriteTo(f); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readFrom(path string, r io.ReaderFrom) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()
	if _, err := r.ReadFrom(f); err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return nil
}
