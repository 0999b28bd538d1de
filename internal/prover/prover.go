// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package prover generates a proof for a harness circuit and returns it in
// the snarkjs JSON shapes together with the public signals.
package prover

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/backend/plonk"
	"github.com/consensys/gnark/frontend"
	"github.com/rs/zerolog"

	"github.com/logical-mechanism/zkharness/internal/circuit"
	"github.com/logical-mechanism/zkharness/internal/keys"
	"github.com/logical-mechanism/zkharness/internal/snarkjs"
)

var (
	ErrWitness = errors.New("witness generation failed")
	ErrProve   = errors.New("proof generation failed")
	ErrExport  = errors.New("proof export failed")
)

// Result is what snarkjs fullProve hands back: proof.json and public.json
// contents, plus the public signals already decoded.
type Result struct {
	Protocol circuit.Protocol
	Proof    []byte
	Public   []byte
	Signals  []*big.Int
}

// WriteFiles stores proof.json and public.json in dir.
func (r *Result) WriteFiles(dir string) error {
	if err := snarkjs.WriteFile(dir, snarkjs.ProofFile, r.Proof); err != nil {
		return err
	}
	return snarkjs.WriteFile(dir, snarkjs.PublicFile, r.Public)
}

type options struct {
	encoding []snarkjs.Option
	log      zerolog.Logger
}

type Option func(*options)

// WithHex writes field elements as 0x-prefixed hex instead of decimal.
func WithHex() Option {
	return func(o *options) { o.encoding = append(o.encoding, snarkjs.WithHex()) }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// Prove builds the witness for inputs, proves with k and checks the proof
// natively before exporting it.
func Prove(ctx context.Context, c circuit.Circuit, k *keys.Keys, inputs map[string]*big.Int, opts ...Option) (*Result, error) {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With().Str("circuit", c.Name()).Str("protocol", string(k.Protocol)).Logger()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	assignment, err := c.Assign(inputs)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitness, err)
	}
	full, err := frontend.NewWitness(assignment, circuit.Curve.ScalarField())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWitness, err)
	}
	pub, err := full.Public()
	if err != nil {
		return nil, fmt.Errorf("%w: public part: %w", ErrWitness, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var proofJSON any
	switch k.Protocol {
	case circuit.Groth16:
		if k.CCS == nil || k.Groth16PK == nil || k.Groth16VK == nil {
			return nil, fmt.Errorf("%w: %w", ErrProve, keys.ErrProtocolMismatch)
		}
		proof, err := groth16.Prove(k.CCS, k.Groth16PK, full)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProve, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := groth16.Verify(proof, k.Groth16VK, pub); err != nil {
			return nil, fmt.Errorf("%w: self-check: %w", ErrProve, err)
		}
		if proofJSON, err = snarkjs.ExportGroth16(proof, o.encoding...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExport, err)
		}
	case circuit.Plonk:
		if k.CCS == nil || k.PlonkPK == nil || k.PlonkVK == nil {
			return nil, fmt.Errorf("%w: %w", ErrProve, keys.ErrProtocolMismatch)
		}
		proof, err := plonk.Prove(k.CCS, k.PlonkPK, full)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrProve, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := plonk.Verify(proof, k.PlonkVK, pub); err != nil {
			return nil, fmt.Errorf("%w: self-check: %w", ErrProve, err)
		}
		if proofJSON, err = snarkjs.ExportPlonk(proof, o.encoding...); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrExport, err)
		}
	default:
		return nil, fmt.Errorf("%w: %w: %q", ErrProve, circuit.ErrUnknownProtocol, k.Protocol)
	}

	signals, err := snarkjs.ExportPublic(pub, o.encoding...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	ints, err := signals.BigInts()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}

	res := &Result{Protocol: k.Protocol, Signals: ints}
	if res.Proof, err = snarkjs.Marshal(proofJSON); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	if res.Public, err = snarkjs.Marshal(signals); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrExport, err)
	}
	log.Debug().Int("public", len(ints)).Int("bytes", len(res.Proof)).Msg("proof generated")
	return res, nil
}
