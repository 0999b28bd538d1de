// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package bigjson

import (
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
)

var bigEquals = qt.CmpEquals(cmp.Comparer(func(a, b *big.Int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Cmp(b) == 0
}))

func bi(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 0)
	if !ok {
		panic("bad test literal " + s)
	}
	return n
}

func TestUnstringifyLeaves(t *testing.T) {
	c := qt.New(t)

	for _, tc := range []struct {
		in   string
		want *big.Int
	}{
		{"0", big.NewInt(0)},
		{"123", big.NewInt(123)},
		{"007", big.NewInt(7)},
		{"0x1a", big.NewInt(26)},
		{"0X1A", big.NewInt(26)},
		{"0xFFff", big.NewInt(0xffff)},
		{"21888242871839275222246405745257275088548364400416034343698204186575808495617",
			bi("21888242871839275222246405745257275088548364400416034343698204186575808495617")},
	} {
		got := Unstringify(tc.in)
		c.Assert(got, bigEquals, tc.want, qt.Commentf("input %q", tc.in))
	}
}

func TestUnstringifyPassthroughStrings(t *testing.T) {
	c := qt.New(t)

	for _, s := range []string{"", "-5", "+5", "ff", "xyz", "1 2", " 1", "1\n", "0x", "0xg1", "1.5", "1e3", "0b101", "٣"} {
		c.Assert(Unstringify(s), qt.Equals, any(s), qt.Commentf("input %q", s))
	}
}

func TestUnstringifyScenario(t *testing.T) {
	c := qt.New(t)

	in, err := Decode([]byte(`{"a": "123", "b": ["0x1a", "xyz", "007"], "c": null}`))
	c.Assert(err, qt.IsNil)

	got := Unstringify(in)
	want := map[string]any{
		"a": big.NewInt(123),
		"b": []any{big.NewInt(26), "xyz", big.NewInt(7)},
		"c": nil,
	}
	c.Assert(got, bigEquals, want)
}

func TestUnstringifyEmptyContainers(t *testing.T) {
	c := qt.New(t)

	c.Assert(Unstringify([]any{}), qt.DeepEquals, any([]any{}))
	c.Assert(Unstringify(map[string]any{}), qt.DeepEquals, any(map[string]any{}))
	c.Assert(Unstringify(nil), qt.IsNil)
	c.Assert(Unstringify([]any(nil)), qt.DeepEquals, any([]any(nil)))
}

func TestUnstringifyOtherPrimitives(t *testing.T) {
	c := qt.New(t)

	c.Assert(Unstringify(true), qt.Equals, any(true))
	c.Assert(Unstringify(false), qt.Equals, any(false))
	c.Assert(Unstringify(3.5), qt.Equals, any(3.5))
	c.Assert(Unstringify(json.Number("42")), qt.Equals, any(json.Number("42")))

	n := big.NewInt(9)
	c.Assert(Unstringify(n), qt.Equals, any(n))
}

func TestUnstringifyDoesNotMutateInput(t *testing.T) {
	c := qt.New(t)

	inner := []any{"1", "2"}
	in := map[string]any{"x": inner, "y": "0x10"}
	_ = Unstringify(in)

	c.Assert(in["y"], qt.Equals, any("0x10"))
	c.Assert(inner[0], qt.Equals, any("1"))
	c.Assert(inner[1], qt.Equals, any("2"))
}

func TestUnstringifyIdempotent(t *testing.T) {
	c := qt.New(t)

	in, err := Decode([]byte(`{
		"pi_a": ["1", "0x2", "1"],
		"pi_b": [["3", "4"], ["5", "6"], ["1", "0"]],
		"protocol": "groth16",
		"n": 3,
		"ok": true,
		"nested": [[[["007"]]], {"k": null}]
	}`))
	c.Assert(err, qt.IsNil)

	once := Unstringify(in)
	twice := Unstringify(once)
	c.Assert(twice, bigEquals, once)
}

func TestUnstringifyDeepNesting(t *testing.T) {
	c := qt.New(t)

	const depth = 10000
	var in any = "0xff"
	for i := 0; i < depth; i++ {
		in = []any{in}
	}

	got := Unstringify(in)
	for i := 0; i < depth; i++ {
		s, ok := got.([]any)
		c.Assert(ok, qt.IsTrue)
		c.Assert(s, qt.HasLen, 1)
		got = s[0]
	}
	c.Assert(got, bigEquals, big.NewInt(255))
}

func TestUnstringifyConcurrent(t *testing.T) {
	c := qt.New(t)

	in, err := Decode([]byte(`{"a": ["1", "2", "0x3"], "b": {"c": "4"}}`))
	c.Assert(err, qt.IsNil)
	want := Unstringify(in)

	var wg sync.WaitGroup
	results := make([]any, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Unstringify(in)
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		c.Assert(r, bigEquals, want)
	}
}

func TestStringify(t *testing.T) {
	c := qt.New(t)

	in := map[string]any{
		"a": big.NewInt(123),
		"b": []any{big.NewInt(26), "xyz", true},
		"c": nil,
	}
	c.Assert(Stringify(in), qt.DeepEquals, any(map[string]any{
		"a": "123",
		"b": []any{"26", "xyz", true},
		"c": nil,
	}))

	// decimal strings survive a full round trip
	orig, err := Decode([]byte(`["1", "22", {"x": "333"}]`))
	c.Assert(err, qt.IsNil)
	c.Assert(Stringify(Unstringify(orig)), qt.DeepEquals, orig)
}

func TestDecode(t *testing.T) {
	c := qt.New(t)

	v, err := Decode([]byte(`[12345678901234567890123, "1"]`))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, any([]any{json.Number("12345678901234567890123"), "1"}))

	_, err = Decode([]byte(`{"a":`))
	c.Assert(err, qt.ErrorMatches, `decode json: .*`)

	_, err = Decode([]byte(`{} {}`))
	c.Assert(err, qt.ErrorMatches, `decode json: unexpected data after top-level value`)

	_, err = Decode(nil)
	c.Assert(err, qt.IsNotNil)
}

func TestDecodeUnstringify(t *testing.T) {
	c := qt.New(t)

	v, err := DecodeUnstringify([]byte(`["-5", "5", 5]`))
	c.Assert(err, qt.IsNil)
	c.Assert(v, bigEquals, []any{"-5", big.NewInt(5), json.Number("5")})
}
