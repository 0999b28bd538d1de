// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package circuit holds the sample circuits driven by the harness and the
// helpers to compile them for a proving system over BN254.
package circuit

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/frontend/cs/scs"
)

// Curve is the only curve the harness targets. snarkjs calls it bn128.
const Curve = ecc.BN254

var (
	ErrUnknownCircuit  = errors.New("unknown circuit")
	ErrUnknownProtocol = errors.New("unknown protocol")
	ErrMissingInput    = errors.New("missing circuit input")
)

// Protocol selects the proving system.
type Protocol string

const (
	Groth16 Protocol = "groth16"
	Plonk   Protocol = "plonk"
)

// ParseProtocol accepts the protocol name case-insensitively.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case Groth16:
		return Groth16, nil
	case Plonk:
		return Plonk, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownProtocol, s)
}

// Circuit describes a sample circuit: its secret input names and how to
// build a full assignment (including the public output) from them.
type Circuit interface {
	Name() string
	// Inputs lists the secret input names in assignment order.
	Inputs() []string
	// Template returns an empty circuit for compilation.
	Template() frontend.Circuit
	// Assign computes the public output out of circuit and returns the full
	// assignment.
	Assign(inputs map[string]*big.Int) (frontend.Circuit, error)
}

var registry = map[string]Circuit{}

func register(c Circuit) {
	registry[strings.ToLower(c.Name())] = c
}

func init() {
	register(HelloWorld{})
	register(Multiplier3{})
}

// Lookup returns the registered circuit with the given name (case-insensitive).
func Lookup(name string) (Circuit, error) {
	c, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownCircuit, name, strings.Join(Names(), ", "))
	}
	return c, nil
}

// Names returns the registered circuit names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for _, c := range registry {
		out = append(out, c.Name())
	}
	sort.Strings(out)
	return out
}

// Compile builds the constraint system of c for the given protocol: R1CS for
// Groth16, sparse R1CS for PLONK.
func Compile(c Circuit, p Protocol) (constraint.ConstraintSystem, error) {
	var builder frontend.NewBuilder
	switch p {
	case Groth16:
		builder = r1cs.NewBuilder
	case Plonk:
		builder = scs.NewBuilder
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, p)
	}

	ccs, err := frontend.Compile(Curve.ScalarField(), builder, c.Template())
	if err != nil {
		return nil, fmt.Errorf("compile %s/%s: %w", c.Name(), p, err)
	}
	return ccs, nil
}

// inputs picks the named values out of in, in order.
func inputs(in map[string]*big.Int, names ...string) ([]*big.Int, error) {
	out := make([]*big.Int, len(names))
	for i, n := range names {
		v, ok := in[n]
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingInput, n)
		}
		out[i] = v
	}
	return out, nil
}

// mulMod returns the product of xs reduced into the scalar field, which is
// what the circuit computes.
func mulMod(xs ...*big.Int) *big.Int {
	mod := Curve.ScalarField()
	acc := big.NewInt(1)
	for _, x := range xs {
		acc.Mul(acc, x)
		acc.Mod(acc, mod)
	}
	return acc
}

// HelloWorld proves knowledge of a, b with a*b == c, c public.
type HelloWorld struct{}

type helloWorldCircuit struct {
	A frontend.Variable
	B frontend.Variable
	C frontend.Variable `gnark:",public"`
}

func (c *helloWorldCircuit) Define(api frontend.API) error {
	api.AssertIsEqual(api.Mul(c.A, c.B), c.C)
	return nil
}

func (HelloWorld) Name() string               { return "HelloWorld" }
func (HelloWorld) Inputs() []string           { return []string{"a", "b"} }
func (HelloWorld) Template() frontend.Circuit { return &helloWorldCircuit{} }

func (h HelloWorld) Assign(in map[string]*big.Int) (frontend.Circuit, error) {
	v, err := inputs(in, h.Inputs()...)
	if err != nil {
		return nil, err
	}
	return &helloWorldCircuit{A: v[0], B: v[1], C: mulMod(v[0], v[1])}, nil
}

// Multiplier3 proves knowledge of a, b, c with a*b*c == d, d public.
type Multiplier3 struct{}

type multiplier3Circuit struct {
	A frontend.Variable
	B frontend.Variable
	C frontend.Variable
	D frontend.Variable `gnark:",public"`
}

func (c *multiplier3Circuit) Define(api frontend.API) error {
	ab := api.Mul(c.A, c.B)
	api.AssertIsEqual(api.Mul(ab, c.C), c.D)
	return nil
}

func (Multiplier3) Name() string               { return "Multiplier3" }
func (Multiplier3) Inputs() []string           { return []string{"a", "b", "c"} }
func (Multiplier3) Template() frontend.Circuit { return &multiplier3Circuit{} }

func (m Multiplier3) Assign(in map[string]*big.Int) (frontend.Circuit, error) {
	v, err := inputs(in, m.Inputs()...)
	if err != nil {
		return nil, err
	}
	return &multiplier3Circuit{A: v[0], B: v[1], C: v[2], D: mulMod(v[0], v[1], v[2])}, nil
}
