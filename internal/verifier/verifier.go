// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package verifier is an in-process stand-in for a deployed Solidity
// verifier. A Contract speaks the ABI of a snarkjs-generated verifier:
// verifyProof(a, b, c, input) for Groth16 and verifyProof(proof,
// pubSignals) for PLONK, with the proof bytes laid out by gnark's WriteTo.
// It answers with an ABI-encoded bool and runs gnark's native
// verification underneath.
//
// This is not the ABI of the verifier.sol written by keys.ExportSolidity.
// That contract is gnark's own: Groth16 takes verifyProof(uint256[8],
// uint256[N]) and reverts on failure, PLONK takes Verify(bytes, uint256[])
// with the proof from MarshalSolidity. The calldata package output targets
// this package, not verifier.sol.
//
// A proof that does not verify, for whatever reason, yields false. Only
// malformed call data or a cancelled context produce an error.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"reflect"
	"strings"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/plonk"
	backend_witness "github.com/consensys/gnark/backend/witness"
	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/logical-mechanism/zkharness/internal/calldata"
	"github.com/logical-mechanism/zkharness/internal/circuit"
	"github.com/logical-mechanism/zkharness/internal/keys"
)

const Method = "verifyProof"

var (
	ErrUnknownMethod = errors.New("unknown method selector")
	ErrCallData      = errors.New("bad call data")
)

const groth16ABI = `[{"type":"function","name":"verifyProof","stateMutability":"view",
"inputs":[{"name":"a","type":"uint256[2]"},{"name":"b","type":"uint256[2][2]"},
{"name":"c","type":"uint256[2]"},{"name":"input","type":"uint256[%d]"}],
"outputs":[{"name":"","type":"bool"}]}]`

const plonkABI = `[{"type":"function","name":"verifyProof","stateMutability":"view",
"inputs":[{"name":"proof","type":"bytes"},{"name":"pubSignals","type":"uint256[]"}],
"outputs":[{"name":"","type":"bool"}]}]`

// Contract verifies proofs for one verifying key. It is immutable once
// deployed and safe for concurrent calls.
type Contract struct {
	protocol circuit.Protocol
	abi      abi.ABI
	nPublic  int

	groth16VK groth16.VerifyingKey
	plonkVK   plonk.VerifyingKey
}

// Deploy picks the contract flavour from the keys' protocol.
func Deploy(k *keys.Keys) (*Contract, error) {
	switch k.Protocol {
	case circuit.Groth16:
		return DeployGroth16(k.Groth16VK)
	case circuit.Plonk:
		return DeployPlonk(k.PlonkVK)
	}
	return nil, fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, k.Protocol)
}

// DeployGroth16 builds a Groth16 contract whose input array is sized to
// the verifying key's public witness.
func DeployGroth16(vk groth16.VerifyingKey) (*Contract, error) {
	if vk == nil {
		return nil, fmt.Errorf("%w: no groth16 verifying key", keys.ErrProtocolMismatch)
	}
	n := vk.NbPublicWitness()
	parsed, err := abi.JSON(strings.NewReader(fmt.Sprintf(groth16ABI, n)))
	if err != nil {
		return nil, fmt.Errorf("groth16 abi: %w", err)
	}
	return &Contract{protocol: circuit.Groth16, abi: parsed, nPublic: n, groth16VK: vk}, nil
}

// DeployPlonk builds a PLONK contract for vk.
func DeployPlonk(vk plonk.VerifyingKey) (*Contract, error) {
	if vk == nil {
		return nil, fmt.Errorf("%w: no plonk verifying key", keys.ErrProtocolMismatch)
	}
	parsed, err := abi.JSON(strings.NewReader(plonkABI))
	if err != nil {
		return nil, fmt.Errorf("plonk abi: %w", err)
	}
	return &Contract{protocol: circuit.Plonk, abi: parsed, nPublic: vk.NbPublicWitness(), plonkVK: vk}, nil
}

// ABI, Protocol and NbPublic describe the deployed contract.
func (c *Contract) ABI() abi.ABI                { return c.abi }
func (c *Contract) Protocol() circuit.Protocol { return c.protocol }
func (c *Contract) NbPublic() int              { return c.nPublic }

// Call executes raw call data: a 4-byte selector followed by the
// ABI-encoded arguments. It returns the ABI-encoded bool result.
func (c *Contract) Call(ctx context.Context, input []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(input) < 4 {
		return nil, fmt.Errorf("%w: %d bytes, need a 4-byte selector", ErrCallData, len(input))
	}
	method, err := c.abi.MethodById(input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrUnknownMethod, input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCallData, err)
	}

	var ok bool
	switch c.protocol {
	case circuit.Groth16:
		ok, err = c.verifyGroth16(args)
	case circuit.Plonk:
		ok, err = c.verifyPlonk(args)
	}
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(ok)
}

// VerifyGroth16 packs call, runs it and decodes the result. A call with
// the wrong number of public inputs is answered with false.
func (c *Contract) VerifyGroth16(ctx context.Context, call *calldata.Groth16Call) (bool, error) {
	if c.protocol != circuit.Groth16 {
		return false, fmt.Errorf("%w: contract verifies %s", keys.ErrProtocolMismatch, c.protocol)
	}
	if len(call.Input) != c.nPublic {
		return false, ctx.Err()
	}
	input, err := c.abi.Pack(Method, call.A, call.B, call.C, call.Input)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCallData, err)
	}
	return c.callBool(ctx, input)
}

// VerifyPlonk packs call, runs it and decodes the result.
func (c *Contract) VerifyPlonk(ctx context.Context, call *calldata.PlonkCall) (bool, error) {
	if c.protocol != circuit.Plonk {
		return false, fmt.Errorf("%w: contract verifies %s", keys.ErrProtocolMismatch, c.protocol)
	}
	input, err := c.abi.Pack(Method, call.Proof, call.Input)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrCallData, err)
	}
	return c.callBool(ctx, input)
}

func (c *Contract) callBool(ctx context.Context, input []byte) (bool, error) {
	ret, err := c.Call(ctx, input)
	if err != nil {
		return false, err
	}
	out, err := c.abi.Unpack(Method, ret)
	if err != nil {
		return false, fmt.Errorf("unpack result: %w", err)
	}
	return out[0].(bool), nil
}

// --- groth16 ---

func (c *Contract) verifyGroth16(args []any) (bool, error) {
	if len(args) != 4 {
		return false, fmt.Errorf("%w: %d arguments", ErrCallData, len(args))
	}
	a, okA := args[0].([2]*big.Int)
	b, okB := args[1].([2][2]*big.Int)
	cc, okC := args[2].([2]*big.Int)
	input, okI := flatten(args[3])
	if !okA || !okB || !okC || !okI {
		return false, fmt.Errorf("%w: unexpected argument types", ErrCallData)
	}

	// b arrives in EVM order, imaginary part first.
	coords := []*big.Int{a[0], a[1], b[0][1], b[0][0], b[1][1], b[1][0], cc[0], cc[1]}
	for _, x := range coords {
		if x.Cmp(fp.Modulus()) >= 0 {
			return false, nil
		}
	}
	var proof groth16bn254.Proof
	proof.Ar.X.SetBigInt(coords[0])
	proof.Ar.Y.SetBigInt(coords[1])
	proof.Bs.X.A0.SetBigInt(coords[2])
	proof.Bs.X.A1.SetBigInt(coords[3])
	proof.Bs.Y.A0.SetBigInt(coords[4])
	proof.Bs.Y.A1.SetBigInt(coords[5])
	proof.Krs.X.SetBigInt(coords[6])
	proof.Krs.Y.SetBigInt(coords[7])

	pub, ok := publicWitness(input, c.nPublic)
	if !ok {
		return false, nil
	}
	return check(func() error { return groth16.Verify(&proof, c.groth16VK, pub) }), nil
}

// --- plonk ---

func (c *Contract) verifyPlonk(args []any) (bool, error) {
	if len(args) != 2 {
		return false, fmt.Errorf("%w: %d arguments", ErrCallData, len(args))
	}
	raw, okP := args[0].([]byte)
	input, okI := args[1].([]*big.Int)
	if !okP || !okI {
		return false, fmt.Errorf("%w: unexpected argument types", ErrCallData)
	}

	pub, ok := publicWitness(input, c.nPublic)
	if !ok {
		return false, nil
	}
	return check(func() error {
		proof := plonk.NewProof(circuit.Curve)
		n, err := proof.ReadFrom(bytes.NewReader(raw))
		if err != nil {
			return err
		}
		if n != int64(len(raw)) {
			return fmt.Errorf("%d trailing bytes", int64(len(raw))-n)
		}
		return plonk.Verify(proof, c.plonkVK, pub)
	}), nil
}

// --- helpers ---

// check runs a verification and maps any failure, including a panic on
// garbage points, to false.
func check(verify func() error) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return verify() == nil
}

// publicWitness builds the witness a verifier consumes. Inputs outside the
// scalar field or a count mismatch are rejected.
func publicWitness(input []*big.Int, nPublic int) (backend_witness.Witness, bool) {
	if len(input) != nPublic {
		return nil, false
	}
	values := make(chan any, len(input))
	for _, x := range input {
		if x.Sign() < 0 || x.Cmp(fr.Modulus()) >= 0 {
			return nil, false
		}
		values <- x
	}
	close(values)

	w, err := backend_witness.New(fr.Modulus())
	if err != nil {
		return nil, false
	}
	if err := w.Fill(nPublic, 0, values); err != nil {
		return nil, false
	}
	return w, true
}

// flatten turns the [N]*big.Int array abi.Unpack builds into a slice.
func flatten(v any) ([]*big.Int, bool) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Array && rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]*big.Int, rv.Len())
	for i := range out {
		n, ok := rv.Index(i).Interface().(*big.Int)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}
