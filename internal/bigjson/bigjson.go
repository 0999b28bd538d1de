// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package bigjson converts between the string-encoded big integers used by
// proving tools (snarkjs style proof objects and public signals) and native
// *big.Int values.
//
// Values are the shapes produced by encoding/json when decoding into an any:
// string, []any, map[string]any, nil and other primitives (bool, float64,
// json.Number). Anything else is passed through untouched, which makes both
// walks idempotent.
package bigjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"regexp"
)

var (
	decimalPattern = regexp.MustCompile(`^[0-9]+$`)
	hexPattern     = regexp.MustCompile(`^0[xX][0-9a-fA-F]+$`)
)

// Unstringify returns a copy of v in which every string leaf that is entirely
// a decimal integer, or 0x/0X followed by hex digits, is replaced by its
// *big.Int value. Signs, whitespace and partial matches are not numeric and
// stay strings. Sequences keep their length and order, mappings keep their
// key set. The input is never modified.
func Unstringify(v any) any {
	switch t := v.(type) {
	case string:
		if n, ok := parseLiteral(t); ok {
			return n
		}
		return t
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i := range t {
			out[i] = Unstringify(t[i])
		}
		return out
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Unstringify(e)
		}
		return out
	default:
		return v
	}
}

// Stringify is the inverse walk of Unstringify: every *big.Int leaf becomes
// its decimal string.
func Stringify(v any) any {
	switch t := v.(type) {
	case *big.Int:
		if t == nil {
			return nil
		}
		return t.String()
	case []any:
		if t == nil {
			return t
		}
		out := make([]any, len(t))
		for i := range t {
			out[i] = Stringify(t[i])
		}
		return out
	case map[string]any:
		if t == nil {
			return t
		}
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = Stringify(e)
		}
		return out
	default:
		return v
	}
}

// parseLiteral matches s against the two anchored patterns. The patterns
// guarantee SetString succeeds.
func parseLiteral(s string) (*big.Int, bool) {
	switch {
	case decimalPattern.MatchString(s):
		return new(big.Int).SetString(s, 10)
	case hexPattern.MatchString(s):
		return new(big.Int).SetString(s[2:], 16)
	}
	return nil, false
}

// Decode parses a single JSON document into the shapes Unstringify walks.
// Numbers are kept as json.Number so that large values are not rounded
// through float64.
func Decode(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode json: unexpected data after top-level value")
	}
	return v, nil
}

// DecodeUnstringify is Decode followed by Unstringify.
func DecodeUnstringify(data []byte) (any, error) {
	v, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return Unstringify(v), nil
}
