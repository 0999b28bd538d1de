// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package snarkjs converts gnark proofs and public witnesses into the JSON
// shapes snarkjs writes (proof.json, public.json). Every field element is
// rendered as a string, decimal by default or 0x-prefixed hex.
package snarkjs

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"reflect"

	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	groth16bn254 "github.com/consensys/gnark/backend/groth16/bn254"
	"github.com/consensys/gnark/backend/plonk"
	backend_witness "github.com/consensys/gnark/backend/witness"

	"github.com/logical-mechanism/zkharness/internal/bigjson"
)

const (
	ProtocolGroth16 = "groth16"
	ProtocolPlonk   = "plonk"
	Curve           = "bn128"

	ProofFile  = "proof.json"
	PublicFile = "public.json"

	// WordSize is the byte width of one PLONK proof word.
	WordSize = 32
)

var (
	ErrUnsupported = errors.New("proof not representable in snarkjs shape")
	ErrFormat      = errors.New("malformed snarkjs json")
)

// --- JSON shapes ---

type Groth16Proof struct {
	PiA      []string   `json:"pi_a"` // [x, y, "1"]
	PiB      [][]string `json:"pi_b"` // [[x0, x1], [y0, y1], ["1", "0"]]
	PiC      []string   `json:"pi_c"` // [x, y, "1"]
	Protocol string     `json:"protocol"`
	Curve    string     `json:"curve"`
}

// PlonkProof carries gnark's binary PLONK proof as 32-byte big-endian words.
// The last word is right-padded with zeros; Length is the true byte count.
type PlonkProof struct {
	Protocol string   `json:"protocol"`
	Curve    string   `json:"curve"`
	Length   int      `json:"length"`
	Words    []string `json:"words"`
}

// PublicSignals is the content of public.json.
type PublicSignals []string

// --- encoding ---

type Encoding int

const (
	Decimal Encoding = iota
	Hex
)

type options struct {
	enc Encoding
}

type Option func(*options)

// WithHex renders field elements as 0x-prefixed lowercase hex.
func WithHex() Option {
	return func(o *options) { o.enc = Hex }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) format(x *big.Int) string {
	if o.enc == Hex {
		return "0x" + x.Text(16)
	}
	return x.String()
}

func (o options) fp(e *fp.Element) string {
	var bi big.Int
	e.BigInt(&bi)
	return o.format(&bi)
}

// --- export ---

// ExportGroth16 converts a BN254 Groth16 proof into the snarkjs shape.
func ExportGroth16(proof groth16.Proof, opts ...Option) (*Groth16Proof, error) {
	p, ok := proof.(*groth16bn254.Proof)
	if !ok {
		return nil, fmt.Errorf("unexpected proof type (need *groth16/bn254.Proof): %T", proof)
	}
	if len(p.Commitments) > 0 {
		return nil, fmt.Errorf("%w: %d commitments", ErrUnsupported, len(p.Commitments))
	}

	o := newOptions(opts)
	one, zero := o.format(big.NewInt(1)), o.format(new(big.Int))
	return &Groth16Proof{
		PiA: []string{o.fp(&p.Ar.X), o.fp(&p.Ar.Y), one},
		PiB: [][]string{
			{o.fp(&p.Bs.X.A0), o.fp(&p.Bs.X.A1)},
			{o.fp(&p.Bs.Y.A0), o.fp(&p.Bs.Y.A1)},
			{one, zero},
		},
		PiC:      []string{o.fp(&p.Krs.X), o.fp(&p.Krs.Y), one},
		Protocol: ProtocolGroth16,
		Curve:    Curve,
	}, nil
}

// ExportPlonk serializes a PLONK proof with gnark's binary encoding and
// splits it into words.
func ExportPlonk(proof plonk.Proof, opts ...Option) (*PlonkProof, error) {
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize plonk proof: %w", err)
	}
	o := newOptions(opts)
	raw := buf.Bytes()

	words := make([]string, 0, (len(raw)+WordSize-1)/WordSize)
	for off := 0; off < len(raw); off += WordSize {
		var w [WordSize]byte
		copy(w[:], raw[off:])
		words = append(words, o.format(new(big.Int).SetBytes(w[:])))
	}
	return &PlonkProof{
		Protocol: ProtocolPlonk,
		Curve:    Curve,
		Length:   len(raw),
		Words:    words,
	}, nil
}

// Bytes reassembles the binary proof from its words.
func (p *PlonkProof) Bytes() ([]byte, error) {
	if p.Length < 0 || p.Length > len(p.Words)*WordSize {
		return nil, fmt.Errorf("%w: length %d does not fit %d words", ErrFormat, p.Length, len(p.Words))
	}
	out := make([]byte, len(p.Words)*WordSize)
	for i, s := range p.Words {
		n, ok := bigjson.Unstringify(s).(*big.Int)
		if !ok || n.BitLen() > WordSize*8 {
			return nil, fmt.Errorf("%w: word %d: %q", ErrFormat, i, s)
		}
		n.FillBytes(out[i*WordSize : (i+1)*WordSize])
	}
	return out[:p.Length], nil
}

// ExportPublic returns the public witness vector in gnark's order.
func ExportPublic(publicWitness backend_witness.Witness, opts ...Option) (PublicSignals, error) {
	o := newOptions(opts)
	vecAny := publicWitness.Vector()
	if vecAny == nil {
		return nil, fmt.Errorf("publicWitness.Vector() returned nil")
	}

	if v, ok := vecAny.(fr.Vector); ok {
		out := make(PublicSignals, len(v))
		for i := range v {
			var bi big.Int
			v[i].BigInt(&bi)
			out[i] = o.format(&bi)
		}
		return out, nil
	}

	// Other curves hand back their own element slices; anything with a
	// BigInt(*big.Int) method works.
	rv := reflect.ValueOf(vecAny)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("unexpected publicWitness.Vector() type %T (not a slice)", vecAny)
	}
	out := make(PublicSignals, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		ev := rv.Index(i)
		var m reflect.Value
		if ev.CanAddr() {
			m = ev.Addr().MethodByName("BigInt")
		}
		if !m.IsValid() {
			return nil, fmt.Errorf("public input elem[%d] unsupported type %T (no BigInt method)", i, ev.Interface())
		}
		var bi big.Int
		m.Call([]reflect.Value{reflect.ValueOf(&bi)})
		out[i] = o.format(&bi)
	}
	return out, nil
}

// BigInts normalizes the signals, accepting decimal and hex strings alike.
func (s PublicSignals) BigInts() ([]*big.Int, error) {
	out := make([]*big.Int, len(s))
	for i, e := range s {
		n, ok := bigjson.Unstringify(e).(*big.Int)
		if !ok {
			return nil, fmt.Errorf("%w: public signal %d: %q", ErrFormat, i, e)
		}
		out[i] = n
	}
	return out, nil
}

// --- JSON I/O ---

// Marshal renders v with the two-space indent snarkjs uses.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFile writes data to dir/name, creating dir.
func WriteFile(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// UnmarshalGroth16Proof parses a Groth16 proof.json and rejects other
// protocols and truncated points.
func UnmarshalGroth16Proof(data []byte) (*Groth16Proof, error) {
	var p Groth16Proof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if p.Protocol != ProtocolGroth16 {
		return nil, fmt.Errorf("%w: protocol %q", ErrFormat, p.Protocol)
	}
	if len(p.PiA) < 2 || len(p.PiB) < 2 || len(p.PiB[0]) < 2 || len(p.PiB[1]) < 2 || len(p.PiC) < 2 {
		return nil, fmt.Errorf("%w: truncated groth16 proof", ErrFormat)
	}
	return &p, nil
}

// UnmarshalPlonkProof parses a PLONK proof.json. Use Bytes to check the
// words.
func UnmarshalPlonkProof(data []byte) (*PlonkProof, error) {
	var p PlonkProof
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	if p.Protocol != ProtocolPlonk {
		return nil, fmt.Errorf("%w: protocol %q", ErrFormat, p.Protocol)
	}
	return &p, nil
}

// ProtocolOf peeks at the protocol field of a proof.json.
func ProtocolOf(data []byte) (string, error) {
	var head struct {
		Protocol string `json:"protocol"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return "", fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return head.Protocol, nil
}

// UnmarshalPublicSignals parses public.json as an array of strings.
func UnmarshalPublicSignals(data []byte) (PublicSignals, error) {
	var s PublicSignals
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}
	return s, nil
}
