// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package circuit

import (
	"math/big"
	"testing"

	"github.com/consensys/gnark/test"
	qt "github.com/frankban/quicktest"
)

func TestLookup(t *testing.T) {
	c := qt.New(t)

	h, err := Lookup("helloworld")
	c.Assert(err, qt.IsNil)
	c.Assert(h.Name(), qt.Equals, "HelloWorld")

	m, err := Lookup(" Multiplier3 ")
	c.Assert(err, qt.IsNil)
	c.Assert(m.Inputs(), qt.DeepEquals, []string{"a", "b", "c"})

	_, err = Lookup("nope")
	c.Assert(err, qt.ErrorIs, ErrUnknownCircuit)

	c.Assert(Names(), qt.DeepEquals, []string{"HelloWorld", "Multiplier3"})
}

func TestParseProtocol(t *testing.T) {
	c := qt.New(t)

	p, err := ParseProtocol("GROTH16")
	c.Assert(err, qt.IsNil)
	c.Assert(p, qt.Equals, Groth16)

	p, err = ParseProtocol("plonk")
	c.Assert(err, qt.IsNil)
	c.Assert(p, qt.Equals, Plonk)

	_, err = ParseProtocol("fflonk")
	c.Assert(err, qt.ErrorIs, ErrUnknownProtocol)
}

func TestAssign(t *testing.T) {
	c := qt.New(t)

	a, err := HelloWorld{}.Assign(map[string]*big.Int{"a": big.NewInt(1), "b": big.NewInt(2)})
	c.Assert(err, qt.IsNil)
	c.Assert(a.(*helloWorldCircuit).C.(*big.Int).Int64(), qt.Equals, int64(2))

	a, err = Multiplier3{}.Assign(map[string]*big.Int{"a": big.NewInt(1), "b": big.NewInt(2), "c": big.NewInt(3)})
	c.Assert(err, qt.IsNil)
	c.Assert(a.(*multiplier3Circuit).D.(*big.Int).Int64(), qt.Equals, int64(6))

	_, err = Multiplier3{}.Assign(map[string]*big.Int{"a": big.NewInt(1)})
	c.Assert(err, qt.ErrorIs, ErrMissingInput)
}

func TestCircuitsSolve(t *testing.T) {
	assert := test.NewAssert(t)

	hw, err := HelloWorld{}.Assign(map[string]*big.Int{"a": big.NewInt(3), "b": big.NewInt(5)})
	assert.NoError(err)
	assert.CheckCircuit(HelloWorld{}.Template(), test.WithValidAssignment(hw), test.WithCurves(Curve))

	m3, err := Multiplier3{}.Assign(map[string]*big.Int{"a": big.NewInt(2), "b": big.NewInt(3), "c": big.NewInt(4)})
	assert.NoError(err)
	bad := &multiplier3Circuit{A: 2, B: 3, C: 4, D: 25}
	assert.CheckCircuit(Multiplier3{}.Template(),
		test.WithValidAssignment(m3),
		test.WithInvalidAssignment(bad),
		test.WithCurves(Curve))
}

func TestCompile(t *testing.T) {
	if testing.Short() {
		t.Skip("skip circuit compilation in -short mode")
	}
	c := qt.New(t)

	for _, p := range []Protocol{Groth16, Plonk} {
		ccs, err := Compile(Multiplier3{}, p)
		c.Assert(err, qt.IsNil)
		c.Assert(ccs.GetNbPublicVariables() > 0, qt.IsTrue)
	}

	_, err := Compile(HelloWorld{}, Protocol("stark"))
	c.Assert(err, qt.ErrorIs, ErrUnknownProtocol)
}

func TestParseInputs(t *testing.T) {
	c := qt.New(t)

	in, err := ParseInputs([]byte(`{"a":"1","b":"0x2","c":3}`))
	c.Assert(err, qt.IsNil)
	c.Assert(in["a"].Int64(), qt.Equals, int64(1))
	c.Assert(in["b"].Int64(), qt.Equals, int64(2))
	c.Assert(in["c"].Int64(), qt.Equals, int64(3))

	for _, bad := range []string{`[1]`, `{"a":"-1"}`, `{"a":-1}`, `{"a":1.5}`, `{"a":true}`, `{`} {
		_, err := ParseInputs([]byte(bad))
		c.Assert(err, qt.ErrorIs, ErrInputFormat, qt.Commentf("input %s", bad))
	}

	got, err := InputsFromStrings(map[string]string{"a": "007", "b": "0X10"})
	c.Assert(err, qt.IsNil)
	c.Assert(got["a"].Int64(), qt.Equals, int64(7))
	c.Assert(got["b"].Int64(), qt.Equals, int64(16))

	_, err = InputsFromStrings(map[string]string{"a": "x"})
	c.Assert(err, qt.ErrorIs, ErrInputFormat)
}
