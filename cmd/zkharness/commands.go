// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/logical-mechanism/zkharness/internal/bigjson"
	"github.com/logical-mechanism/zkharness/internal/calldata"
	"github.com/logical-mechanism/zkharness/internal/circuit"
	"github.com/logical-mechanism/zkharness/internal/harness"
	"github.com/logical-mechanism/zkharness/internal/keys"
	"github.com/logical-mechanism/zkharness/internal/prover"
	"github.com/logical-mechanism/zkharness/internal/snarkjs"
	"github.com/logical-mechanism/zkharness/internal/verifier"
)

func resolve(name, proto string) (circuit.Circuit, circuit.Protocol, error) {
	if name == "" {
		return nil, "", usagef("--circuit is required (one of %s)", strings.Join(circuit.Names(), ", "))
	}
	c, err := circuit.Lookup(name)
	if err != nil {
		return nil, "", usageError{err}
	}
	p, err := circuit.ParseProtocol(proto)
	if err != nil {
		return nil, "", usageError{err}
	}
	return c, p, nil
}

func (a *app) normalizeCmd() *cobra.Command {
	var stringify bool
	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Turn numeric string literals in a JSON document into integers",
		Long: "normalize reads JSON from file (or stdin) and rewrites every string that\n" +
			"is a decimal or 0x hex integer literal as a JSON number, recursively.\n" +
			"With --stringify the numbers are written back as decimal strings.",
		Args: usageArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 1 {
				data, err = os.ReadFile(args[0])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return err
			}
			v, err := bigjson.DecodeUnstringify(data)
			if err != nil {
				return err
			}
			if stringify {
				v = bigjson.Stringify(v)
			}
			out, err := json.MarshalIndent(v, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&stringify, "stringify", false, "write integers as canonical decimal strings")
	return cmd
}

func (a *app) setupCmd() *cobra.Command {
	var name, proto, out string
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Compile a circuit and run a single-party key setup",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, p, err := resolve(name, proto)
			if err != nil {
				return err
			}
			dir := out
			if dir == "" {
				dir = harness.KeysDir(a.cfg.ArtifactsDir, c, p)
			}
			if keys.Exist(dir) {
				fmt.Fprintf(a.stdout, "Setup files already exist in %s, skipping\n", dir)
				return nil
			}

			start := time.Now()
			k, _, err := harness.LoadOrSetup(dir, c, p)
			if err != nil {
				return err
			}
			a.log.Info().
				Str("circuit", c.Name()).
				Str("protocol", string(p)).
				Int("constraints", k.CCS.GetNbConstraints()).
				Dur("took", time.Since(start)).
				Msg("setup complete")
			fmt.Fprintf(a.stdout, "Setup complete: %s %s, %d constraints, %d public\n",
				c.Name(), p, k.CCS.GetNbConstraints(), k.NbPublic())
			fmt.Fprintf(a.stdout, "Wrote %s, %s, %s and %s to %s\n",
				keys.CCSFile, keys.PKFile, keys.VKFile, keys.SolidityFile, dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "circuit", "", "circuit name")
	cmd.Flags().StringVar(&proto, "protocol", string(circuit.Groth16), "groth16 or plonk")
	cmd.Flags().StringVar(&out, "out", "", "output directory (default <artifacts-dir>/<circuit>/<protocol>)")
	return cmd
}

func readInputs(file string, kv map[string]string) (map[string]*big.Int, error) {
	var (
		in  map[string]*big.Int
		err error
	)
	switch {
	case file != "":
		data, rerr := os.ReadFile(file)
		if rerr != nil {
			return nil, usageError{rerr}
		}
		in, err = circuit.ParseInputs(data)
	case len(kv) > 0:
		in, err = circuit.InputsFromStrings(kv)
	default:
		return nil, usagef("--inputs or --input is required")
	}
	if err != nil {
		return nil, usageError{err}
	}
	return in, nil
}

func (a *app) proveCmd() *cobra.Command {
	var (
		name, proto, keysDir, inputsFile, out string
		kv                                    map[string]string
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Generate a proof and write proof.json and public.json",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, p, err := resolve(name, proto)
			if err != nil {
				return err
			}
			in, err := readInputs(inputsFile, kv)
			if err != nil {
				return err
			}

			var k *keys.Keys
			if keysDir != "" {
				if !keys.Exist(keysDir) {
					return usagef("no setup files in %s", keysDir)
				}
				k, err = keys.Load(keysDir, p)
			} else {
				k, _, err = harness.LoadOrSetup(harness.KeysDir(a.cfg.ArtifactsDir, c, p), c, p)
			}
			if err != nil {
				return err
			}

			opts := []prover.Option{prover.WithLogger(a.log)}
			if a.cfg.Hex {
				opts = append(opts, prover.WithHex())
			}
			res, err := prover.Prove(cmd.Context(), c, k, in, opts...)
			if err != nil {
				return err
			}
			if err := res.WriteFiles(out); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "SUCCESS: proof verified natively; public signals = [%s]\n", harness.JoinInts(res.Signals))
			fmt.Fprintf(a.stdout, "Wrote %s and %s\n",
				filepath.Join(out, snarkjs.ProofFile), filepath.Join(out, snarkjs.PublicFile))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "circuit", "", "circuit name")
	cmd.Flags().StringVar(&proto, "protocol", string(circuit.Groth16), "groth16 or plonk")
	cmd.Flags().StringVar(&keysDir, "keys", "", "directory holding ccs.bin, pk.bin and vk.bin (default: cached setup)")
	cmd.Flags().StringVar(&inputsFile, "inputs", "", "inputs.json with the secret inputs")
	cmd.Flags().StringToStringVar(&kv, "input", nil, "secret input as name=value, repeatable")
	cmd.Flags().StringVar(&out, "out", "out", "directory for proof.json and public.json")
	return cmd
}

// readProof loads proof.json and public.json, checks them against the
// snarkjs shapes and normalizes them.
func readProof(proofPath, publicPath string) (proto string, proof, signals any, err error) {
	proofData, err := os.ReadFile(proofPath)
	if err != nil {
		return "", nil, nil, err
	}
	if proto, err = snarkjs.ProtocolOf(proofData); err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", proofPath, err)
	}
	if err = checkProof(proto, proofData); err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", proofPath, err)
	}
	publicData, err := os.ReadFile(publicPath)
	if err != nil {
		return "", nil, nil, err
	}
	public, err := snarkjs.UnmarshalPublicSignals(publicData)
	if err == nil {
		_, err = public.BigInts()
	}
	if err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", publicPath, err)
	}
	if proof, err = bigjson.DecodeUnstringify(proofData); err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", proofPath, err)
	}
	if signals, err = bigjson.DecodeUnstringify(publicData); err != nil {
		return "", nil, nil, fmt.Errorf("%s: %w", publicPath, err)
	}
	return proto, proof, signals, nil
}

func checkProof(proto string, data []byte) error {
	switch proto {
	case snarkjs.ProtocolGroth16:
		_, err := snarkjs.UnmarshalGroth16Proof(data)
		return err
	case snarkjs.ProtocolPlonk:
		p, err := snarkjs.UnmarshalPlonkProof(data)
		if err != nil {
			return err
		}
		_, err = p.Bytes()
		return err
	}
	return fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, proto)
}

func (a *app) calldataCmd() *cobra.Command {
	var proofPath, publicPath string
	var argv bool
	cmd := &cobra.Command{
		Use:   "calldata",
		Short: "Print the verifyProof calldata for a proof, like snarkjs zkey export soliditycalldata",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			proto, proof, signals, err := readProof(proofPath, publicPath)
			if err != nil {
				return err
			}

			var text string
			switch proto {
			case snarkjs.ProtocolGroth16:
				text, err = calldata.Groth16(proof, signals)
			case snarkjs.ProtocolPlonk:
				text, err = calldata.Plonk(proof, signals)
			default:
				return fmt.Errorf("%w: %q", circuit.ErrUnknownProtocol, proto)
			}
			if err != nil {
				return err
			}
			if !argv {
				fmt.Fprintln(a.stdout, text)
				return nil
			}

			// The PLONK proof stays a single hex blob; everything else is
			// rendered in decimal.
			var fields []string
			if proto == snarkjs.ProtocolGroth16 {
				fields, err = calldata.Argv(text)
			} else {
				fields = calldata.Split(text)
				var rest []string
				rest, err = calldata.Argv(strings.Join(fields[1:], ","))
				fields = append(fields[:1], rest...)
			}
			if err != nil {
				return err
			}
			out, err := json.Marshal(fields)
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&proofPath, "proof", filepath.Join("out", snarkjs.ProofFile), "proof.json path")
	cmd.Flags().StringVar(&publicPath, "public", filepath.Join("out", snarkjs.PublicFile), "public.json path")
	cmd.Flags().BoolVar(&argv, "argv", false, "print the split argument vector as a JSON array")
	return cmd
}

func (a *app) verifyCmd() *cobra.Command {
	var name, proto, keysDir, proofPath, publicPath string
	var zero bool
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Send a proof to the verifier contract and print its answer",
		Long: "verify deploys the verifier contract for the circuit's verifying key and\n" +
			"calls verifyProof. It exits 0 when the answer is true. With --zero it\n" +
			"sends an all-zero proof instead and exits 0 when the answer is false.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				proof, signals any
				err            error
			)
			if !zero {
				var fromFile string
				if fromFile, proof, signals, err = readProof(proofPath, publicPath); err != nil {
					return err
				}
				if proto == "" {
					proto = fromFile
				} else if proto != fromFile {
					return usagef("--protocol %s does not match proof protocol %s", proto, fromFile)
				}
			}
			if proto == "" {
				proto = string(circuit.Groth16)
			}
			c, p, err := resolve(name, proto)
			if err != nil {
				return err
			}
			dir := keysDir
			if dir == "" {
				dir = harness.KeysDir(a.cfg.ArtifactsDir, c, p)
			}
			k, err := keys.LoadVerifyingKey(dir, p)
			if err != nil {
				return err
			}
			contract, err := verifier.Deploy(k)
			if err != nil {
				return err
			}

			var ok bool
			if zero {
				ok, err = harness.VerifyZero(cmd.Context(), contract)
			} else {
				ok, err = harness.Verify(cmd.Context(), contract, proof, signals)
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, ok)
			switch {
			case zero && ok:
				return errors.New("verifier accepted an all-zero proof")
			case !zero && !ok:
				return errors.New("verifier rejected the proof")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "circuit", "", "circuit name")
	cmd.Flags().StringVar(&proto, "protocol", "", "groth16 or plonk (default: taken from proof.json)")
	cmd.Flags().StringVar(&keysDir, "keys", "", "directory holding vk.bin (default: cached setup)")
	cmd.Flags().StringVar(&proofPath, "proof", filepath.Join("out", snarkjs.ProofFile), "proof.json path")
	cmd.Flags().StringVar(&publicPath, "public", filepath.Join("out", snarkjs.PublicFile), "public.json path")
	cmd.Flags().BoolVar(&zero, "zero", false, "send an all-zero proof and expect it to be rejected")
	return cmd
}

func (a *app) runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run [scenario...]",
		Short: "Run the proving scenarios end to end",
		Long: "run proves every scenario, checks that the verifier contract accepts the\n" +
			"proof and rejects an all-zero one. Scenarios: " +
			strings.Join(scenarioNames(), ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := a.cfg.Scenarios
			if len(args) > 0 {
				names = args
			}
			scenarios, err := harness.Select(harness.DefaultScenarios(), names)
			if err != nil {
				return usageError{err}
			}

			r := harness.New(a.cfg, a.log, nil)
			reports, err := r.RunAll(cmd.Context(), scenarios)
			if err != nil {
				return err
			}

			failed := 0
			for _, rep := range reports {
				status := "PASS"
				if !rep.Passed() {
					status = "FAIL"
					failed++
				}
				fmt.Fprintf(a.stdout, "%s %s output=[%s] valid=%s zero=%s (setup %s, prove %s, verify %s)\n",
					status, rep.Scenario, harness.JoinInts(rep.Output),
					answer(rep.ValidAccepted), answer(!rep.InvalidRejected),
					round(rep.Durations[harness.StageSetup]),
					round(rep.Durations[harness.StageProve]),
					round(rep.Durations[harness.StageVerify]))
			}

			if a.cfg.MetricsFile != "" {
				if err := writeMetrics(r.Metrics(), a.cfg.MetricsFile); err != nil {
					return err
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios failed", failed, len(reports))
			}
			fmt.Fprintf(a.stdout, "%d passing\n", len(reports))
			return nil
		},
	}
}

func scenarioNames() []string {
	var names []string
	for _, s := range harness.DefaultScenarios() {
		names = append(names, s.Name)
	}
	return names
}

func answer(accepted bool) string {
	if accepted {
		return "accepted"
	}
	return "rejected"
}

func round(d time.Duration) time.Duration {
	return d.Round(time.Millisecond)
}

func writeMetrics(m *harness.Metrics, path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := m.WriteText(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
