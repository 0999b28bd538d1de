// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Command zkharness proves the sample circuits, formats snarkjs-style
// calldata and checks it against an in-process verifier contract.
//
// Exit codes: 0 success, 1 failure, 2 usage error.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/logical-mechanism/zkharness/internal/config"
	"github.com/logical-mechanism/zkharness/internal/log"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// usageError marks errors that exit with code 2.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error {
	return usageError{fmt.Errorf(format, a...)}
}

// usageArgs turns a cobra positional-argument check into a usage error.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError{err}
		}
		return nil
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	stdout, stderr io.Writer
	cfgFile        string
	cfg            *config.Config
	log            zerolog.Logger
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := &app{stdout: stdout, stderr: stderr, log: zerolog.Nop()}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	fmt.Fprintln(stderr, "error:", err)
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zkharness",
		Short:         "Prove sample circuits and check them against a verifier contract",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags(), a.cfgFile)
			if err != nil {
				return usageError{err}
			}
			l, err := log.New(cfg.LogLevel, cfg.LogFormat, a.stderr)
			if err != nil {
				return usageError{err}
			}
			a.cfg, a.log = cfg, l
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				cmd.SetOut(a.stderr)
				_ = cmd.Usage()
				return usagef("missing command")
			}
			return usagef("unknown command %q", args[0])
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./zkharness.yaml if present)")
	config.Flags(root.PersistentFlags())

	root.AddCommand(
		a.normalizeCmd(),
		a.setupCmd(),
		a.proveCmd(),
		a.calldataCmd(),
		a.verifyCmd(),
		a.runCmd(),
		a.ceremonyCmd(),
	)
	return root
}
