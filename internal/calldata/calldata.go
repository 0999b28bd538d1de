// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package calldata formats normalized proofs as the text snarkjs
// exportSolidityCallData produces, and parses that text back into the
// grouped arguments of a verifier's verifyProof call.
package calldata

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/logical-mechanism/zkharness/internal/bigjson"
)

var ErrMalformed = errors.New("malformed calldata")

// strip matches what the harness removes before splitting on commas.
var strip = regexp.MustCompile(`["\[\]\s]`)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Groth16Call holds the arguments of verifyProof(a, b, c, input).
type Groth16Call struct {
	A     [2]*big.Int
	B     [2][2]*big.Int
	C     [2]*big.Int
	Input []*big.Int
}

// PlonkCall holds the arguments of verifyProof(proof, pubSignals).
type PlonkCall struct {
	Proof []byte
	Input []*big.Int
}

// --- formatting ---

// Groth16 renders a normalized snarkjs Groth16 proof and its public signals.
// The two halves of each G2 coordinate are swapped, as the EVM pairing
// precompile expects the imaginary part first.
func Groth16(proof, publicSignals any) (string, error) {
	p, ok := proof.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: proof is %T, want an object", ErrMalformed, proof)
	}
	get := func(key string, idx ...int) (string, error) {
		v, err := at(p[key], idx...)
		if err != nil {
			return "", fmt.Errorf("%s%v: %w", key, idx, err)
		}
		return p256(v)
	}

	var fields []string
	for _, ref := range []struct {
		key string
		idx []int
	}{
		{"pi_a", []int{0}}, {"pi_a", []int{1}},
		{"pi_b", []int{0, 1}}, {"pi_b", []int{0, 0}},
		{"pi_b", []int{1, 1}}, {"pi_b", []int{1, 0}},
		{"pi_c", []int{0}}, {"pi_c", []int{1}},
	} {
		s, err := get(ref.key, ref.idx...)
		if err != nil {
			return "", err
		}
		fields = append(fields, s)
	}
	inputs, err := signals(publicSignals)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("[%s, %s],[[%s, %s],[%s, %s]],[%s, %s],[%s]",
		fields[0], fields[1], fields[2], fields[3], fields[4], fields[5], fields[6], fields[7],
		strings.Join(inputs, ",")), nil
}

// Plonk renders a normalized PLONK proof (words plus length) and its public
// signals as 0x<proof bytes>,[signals].
func Plonk(proof, publicSignals any) (string, error) {
	p, ok := proof.(map[string]any)
	if !ok {
		return "", fmt.Errorf("%w: proof is %T, want an object", ErrMalformed, proof)
	}
	length, err := toBig(p["length"])
	if err != nil {
		return "", fmt.Errorf("length: %w", err)
	}
	words, ok := p["words"].([]any)
	if !ok {
		return "", fmt.Errorf("%w: words is %T, want an array", ErrMalformed, p["words"])
	}
	if !length.IsInt64() || length.Sign() < 0 || length.Int64() > int64(len(words))*32 {
		return "", fmt.Errorf("%w: length %s does not fit %d words", ErrMalformed, length, len(words))
	}

	raw := make([]byte, len(words)*32)
	for i, w := range words {
		n, err := toBig(w)
		if err != nil {
			return "", fmt.Errorf("words[%d]: %w", i, err)
		}
		if n.Sign() < 0 {
			return "", fmt.Errorf("%w: words[%d] is negative", ErrMalformed, i)
		}
		if n.Cmp(maxUint256) > 0 {
			return "", fmt.Errorf("%w: words[%d] exceeds 256 bits", ErrMalformed, i)
		}
		n.FillBytes(raw[i*32 : (i+1)*32])
	}
	inputs, err := signals(publicSignals)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%s,[%s]", hex.EncodeToString(raw[:length.Int64()]), strings.Join(inputs, ",")), nil
}

func signals(v any) ([]string, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: public signals are %T, want an array", ErrMalformed, v)
	}
	out := make([]string, len(list))
	for i, e := range list {
		n, err := toBig(e)
		if err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		if out[i], err = p256(n); err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
	}
	return out, nil
}

func at(v any, idx ...int) (*big.Int, error) {
	for _, i := range idx {
		list, ok := v.([]any)
		if !ok || i >= len(list) {
			return nil, fmt.Errorf("%w: missing element", ErrMalformed)
		}
		v = list[i]
	}
	return toBig(v)
}

// toBig accepts a normalized leaf, or a leaf the normalizer would convert.
func toBig(v any) (*big.Int, error) {
	switch t := v.(type) {
	case *big.Int:
		if t == nil {
			break
		}
		return t, nil
	case json.Number:
		if n, ok := new(big.Int).SetString(t.String(), 10); ok {
			return n, nil
		}
	case string:
		if n, ok := bigjson.Unstringify(t).(*big.Int); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %v is not an integer", ErrMalformed, v)
}

// p256 renders n as a quoted 32-byte hex word.
func p256(n *big.Int) (string, error) {
	if n.Sign() < 0 || n.Cmp(maxUint256) > 0 {
		return "", fmt.Errorf("%w: %s does not fit uint256", ErrMalformed, n)
	}
	return fmt.Sprintf("%q", fmt.Sprintf("0x%064x", n)), nil
}

// --- parsing ---

// Split removes quotes, brackets and whitespace and splits on commas.
// Empty fields, such as the one left by an empty signal list, are dropped.
func Split(s string) []string {
	var out []string
	for _, f := range strings.Split(strip.ReplaceAllString(s, ""), ",") {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Argv splits s and re-renders every field as a decimal string.
func Argv(s string) ([]string, error) {
	fields := Split(s)
	out := make([]string, len(fields))
	for i, f := range fields {
		n, err := ParseInt(f)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		out[i] = n.String()
	}
	return out, nil
}

// ParseInt parses an integer literal: decimal with an optional sign, or
// unsigned 0x, 0o or 0b prefixed.
func ParseInt(s string) (*big.Int, error) {
	base, digits := 10, s
	if len(s) > 2 && s[0] == '0' {
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 10 {
			digits = s[2:]
		}
	}
	if base != 10 && (digits[0] == '+' || digits[0] == '-') {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrMalformed, s)
	}
	n, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("%w: %q is not an integer", ErrMalformed, s)
	}
	return n, nil
}

// ParseGroth16 groups argv as a = argv[0:2], b = [[argv[2], argv[3]],
// [argv[4], argv[5]]], c = argv[6:8] and input = argv[8:].
func ParseGroth16(argv []string) (*Groth16Call, error) {
	if len(argv) < 8 {
		return nil, fmt.Errorf("%w: need at least 8 values, got %d", ErrMalformed, len(argv))
	}
	n := make([]*big.Int, len(argv))
	for i, s := range argv {
		v, err := ParseInt(s)
		if err != nil {
			return nil, fmt.Errorf("argv[%d]: %w", i, err)
		}
		n[i] = v
	}
	return &Groth16Call{
		A:     [2]*big.Int{n[0], n[1]},
		B:     [2][2]*big.Int{{n[2], n[3]}, {n[4], n[5]}},
		C:     [2]*big.Int{n[6], n[7]},
		Input: n[8:],
	}, nil
}

// ParsePlonk reads the PLONK calldata text. The proof field is decoded as
// raw hex, so leading zero bytes survive.
func ParsePlonk(s string) (*PlonkCall, error) {
	fields := Split(s)
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: empty plonk calldata", ErrMalformed)
	}
	proof, err := hexutil.Decode(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: proof: %w", ErrMalformed, err)
	}
	call := &PlonkCall{Proof: proof, Input: make([]*big.Int, 0, len(fields)-1)}
	for i, f := range fields[1:] {
		n, err := ParseInt(f)
		if err != nil {
			return nil, fmt.Errorf("signal %d: %w", i, err)
		}
		call.Input = append(call.Input, n)
	}
	return call, nil
}

// ZeroGroth16 returns the all-zero call a verifier must reject.
func ZeroGroth16(nPublic int) *Groth16Call {
	z := func() *big.Int { return new(big.Int) }
	call := &Groth16Call{
		A:     [2]*big.Int{z(), z()},
		B:     [2][2]*big.Int{{z(), z()}, {z(), z()}},
		C:     [2]*big.Int{z(), z()},
		Input: make([]*big.Int, nPublic),
	}
	for i := range call.Input {
		call.Input[i] = z()
	}
	return call
}

// ZeroPlonk returns a one-byte zero proof with zero signals.
func ZeroPlonk(nPublic int) *PlonkCall {
	call := &PlonkCall{Proof: []byte{0}, Input: make([]*big.Int, nPublic)}
	for i := range call.Input {
		call.Input[i] = new(big.Int)
	}
	return call
}
