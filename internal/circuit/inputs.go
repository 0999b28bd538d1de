// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package circuit

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/logical-mechanism/zkharness/internal/bigjson"
)

var ErrInputFormat = errors.New("invalid circuit inputs")

// ParseInputs reads an inputs.json object such as {"a":"1","b":"0x2","c":3}.
// String values must be decimal or 0x-prefixed hex, number values must be
// non-negative integers.
func ParseInputs(data []byte) (map[string]*big.Int, error) {
	v, err := bigjson.DecodeUnstringify(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInputFormat, err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: want a JSON object, got %T", ErrInputFormat, v)
	}

	out := make(map[string]*big.Int, len(obj))
	for k, e := range obj {
		switch t := e.(type) {
		case *big.Int:
			out[k] = t
		case json.Number:
			n, ok := new(big.Int).SetString(t.String(), 10)
			if !ok || n.Sign() < 0 {
				return nil, fmt.Errorf("%w: %q: %s is not a non-negative integer", ErrInputFormat, k, t)
			}
			out[k] = n
		default:
			return nil, fmt.Errorf("%w: %q: unsupported value %v", ErrInputFormat, k, e)
		}
	}
	return out, nil
}

// InputsFromStrings parses a name -> literal map, as used by scenario
// definitions and CLI flags.
func InputsFromStrings(in map[string]string) (map[string]*big.Int, error) {
	out := make(map[string]*big.Int, len(in))
	for k, s := range in {
		n, ok := bigjson.Unstringify(s).(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: %q: %q is not a decimal or 0x hex integer", ErrInputFormat, k, s)
		}
		out[k] = n
	}
	return out, nil
}
