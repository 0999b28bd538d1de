// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package harness

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/logical-mechanism/zkharness/internal/circuit"
)

var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is one proving run: prove Inputs on Circuit with Protocol, then
// expect the verifier to accept the proof and reject a zero-filled one.
type Scenario struct {
	Name     string
	Circuit  circuit.Circuit
	Protocol circuit.Protocol
	Inputs   map[string]*big.Int
}

func mustInputs(in map[string]string) map[string]*big.Int {
	out, err := circuit.InputsFromStrings(in)
	if err != nil {
		panic(err)
	}
	return out
}

// DefaultScenarios returns the three standard runs.
func DefaultScenarios() []Scenario {
	return []Scenario{
		{
			Name:     "helloworld-groth16",
			Circuit:  circuit.HelloWorld{},
			Protocol: circuit.Groth16,
			Inputs:   mustInputs(map[string]string{"a": "1", "b": "2"}),
		},
		{
			Name:     "multiplier3-groth16",
			Circuit:  circuit.Multiplier3{},
			Protocol: circuit.Groth16,
			Inputs:   mustInputs(map[string]string{"a": "1", "b": "2", "c": "3"}),
		},
		{
			Name:     "multiplier3-plonk",
			Circuit:  circuit.Multiplier3{},
			Protocol: circuit.Plonk,
			Inputs:   mustInputs(map[string]string{"a": "1", "b": "2", "c": "3"}),
		},
	}
}

// Select keeps the scenarios named in names, in the order given. An empty
// names list selects everything.
func Select(all []Scenario, names []string) ([]Scenario, error) {
	if len(names) == 0 {
		return all, nil
	}
	out := make([]Scenario, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		found := false
		for _, s := range all {
			if strings.EqualFold(s.Name, name) {
				out = append(out, s)
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %q", ErrUnknownScenario, name)
		}
	}
	return out, nil
}
