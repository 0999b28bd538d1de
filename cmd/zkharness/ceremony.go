// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/logical-mechanism/zkharness/internal/ceremony"
	"github.com/logical-mechanism/zkharness/internal/circuit"
	"github.com/logical-mechanism/zkharness/internal/keys"
)

func (a *app) ceremonyCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "ceremony",
		Short: "Run a multi-party Groth16 trusted setup",
		Long: "ceremony replaces the single-party setup with a two-phase MPC:\n" +
			"  init        compile the circuit and create the phase 1 accumulator\n" +
			"  contribute  add randomness to the latest accumulator (--phase 1|2)\n" +
			"  verify      check every contribution of a phase (--phase 1|2)\n" +
			"  finalize    seal a phase with a public beacon (--phase 1|2 --beacon hex)",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.SetOut(a.stderr)
				_ = cmd.Usage()
				return usagef("missing ceremony subcommand")
			}
			return usagef("unknown ceremony subcommand %q", args[0])
		},
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "ceremony", "ceremony directory")
	cmd.AddCommand(
		a.ceremonyInitCmd(&dir),
		a.ceremonyContributeCmd(&dir),
		a.ceremonyVerifyCmd(&dir),
		a.ceremonyFinalizeCmd(&dir),
	)
	return cmd
}

func checkPhase(phase int) error {
	if phase != 1 && phase != 2 {
		return usagef("--phase must be 1 or 2")
	}
	return nil
}

func (a *app) ceremonyInitCmd(dir *string) *cobra.Command {
	var name string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Compile the circuit and create the initial phase 1 accumulator",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			c, _, err := resolve(name, string(circuit.Groth16))
			if err != nil {
				return err
			}
			info, err := ceremony.Init(*dir, c, force)
			if err != nil {
				return err
			}
			a.log.Info().Str("dir", *dir).Str("circuit", info.Circuit).Msg("ceremony initialized")
			fmt.Fprintf(a.stdout, "Ceremony initialized in %s\n", *dir)
			fmt.Fprintf(a.stdout, "  circuit:     %s\n", info.Circuit)
			fmt.Fprintf(a.stdout, "  constraints: %d\n", info.Constraints)
			fmt.Fprintf(a.stdout, "  domain size: %d\n", info.DomainSize)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "circuit", "", "circuit name")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing ceremony")
	return cmd
}

func (a *app) ceremonyContributeCmd(dir *string) *cobra.Command {
	var phase int
	cmd := &cobra.Command{
		Use:   "contribute",
		Short: "Add a contribution to the latest accumulator of a phase",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := checkPhase(phase); err != nil {
				return err
			}
			contribute := ceremony.ContributePhase1
			if phase == 2 {
				contribute = ceremony.ContributePhase2
			}
			idx, hash, err := contribute(*dir)
			if err != nil {
				return err
			}
			a.log.Info().Int("phase", phase).Int("index", idx).Str("sha256", hash).Msg("contribution added")
			fmt.Fprintf(a.stdout, "Phase %d contribution #%d written\n", phase, idx)
			fmt.Fprintf(a.stdout, "  sha256: %s\n", hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&phase, "phase", 0, "ceremony phase (1 or 2)")
	return cmd
}

func (a *app) ceremonyVerifyCmd(dir *string) *cobra.Command {
	var phase int
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify every contribution of a phase against its predecessor",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := checkPhase(phase); err != nil {
				return err
			}
			verify := ceremony.VerifyPhase1
			if phase == 2 {
				verify = ceremony.VerifyPhase2
			}
			n, err := verify(*dir)
			if err != nil {
				return fmt.Errorf("%d contribution(s) valid before failure: %w", n, err)
			}
			fmt.Fprintf(a.stdout, "Phase %d: %d contribution(s) verified\n", phase, n)
			return nil
		},
	}
	cmd.Flags().IntVar(&phase, "phase", 0, "ceremony phase (1 or 2)")
	return cmd
}

func (a *app) ceremonyFinalizeCmd(dir *string) *cobra.Command {
	var phase int
	var beaconHex string
	cmd := &cobra.Command{
		Use:   "finalize",
		Short: "Seal a phase with a public random beacon",
		Args:  usageArgs(cobra.NoArgs),
		RunE: func(_ *cobra.Command, _ []string) error {
			if err := checkPhase(phase); err != nil {
				return err
			}
			if beaconHex == "" {
				return usagef("--beacon is required")
			}
			beacon, err := hex.DecodeString(beaconHex)
			if err != nil {
				return usagef("invalid beacon hex: %v", err)
			}

			if phase == 1 {
				if err := ceremony.FinalizePhase1(*dir, beacon); err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, "Phase 1 finalized; phase 2 initialized")
				return nil
			}
			k, err := ceremony.FinalizePhase2(*dir, beacon)
			if err != nil {
				return err
			}
			a.log.Info().Str("dir", *dir).Int("public", k.NbPublic()).Msg("ceremony finalized")
			fmt.Fprintln(a.stdout, "Phase 2 finalized")
			for _, name := range []string{keys.PKFile, keys.VKFile, keys.SolidityFile} {
				fmt.Fprintf(a.stdout, "  wrote %s\n", filepath.Join(*dir, name))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&phase, "phase", 0, "ceremony phase (1 or 2)")
	cmd.Flags().StringVar(&beaconHex, "beacon", "", "public beacon as hex")
	return cmd
}
