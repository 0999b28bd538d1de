// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

// Package config resolves harness settings from flags, ZKHARNESS_*
// environment variables, an optional zkharness.yaml and built-in defaults,
// in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/logical-mechanism/zkharness/internal/log"
)

const (
	EnvPrefix = "ZKHARNESS"
	FileName  = "zkharness"
)

var ErrInvalid = errors.New("invalid configuration")

// Config keys double as flag names.
const (
	KeyArtifactsDir = "artifacts-dir"
	KeyLogLevel     = "log-level"
	KeyLogFormat    = "log-format"
	KeyConcurrency  = "concurrency"
	KeyHex          = "hex"
	KeyScenarios    = "scenarios"
	KeyMetricsFile  = "metrics-file"
)

type Config struct {
	ArtifactsDir string   `mapstructure:"artifacts-dir"`
	LogLevel     string   `mapstructure:"log-level"`
	LogFormat    string   `mapstructure:"log-format"`
	Concurrency  int      `mapstructure:"concurrency"`
	Hex          bool     `mapstructure:"hex"`
	Scenarios    []string `mapstructure:"scenarios"`
	MetricsFile  string   `mapstructure:"metrics-file"`
}

func Default() Config {
	return Config{
		ArtifactsDir: "artifacts",
		LogLevel:     zerolog.InfoLevel.String(),
		LogFormat:    log.FormatConsole,
		Concurrency:  min(runtime.NumCPU(), 4),
	}
}

// Flags registers the persistent flags the config understands.
func Flags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(KeyArtifactsDir, d.ArtifactsDir, "directory holding compiled circuits and keys")
	fs.String(KeyLogLevel, d.LogLevel, "log level (debug, info, warn, error, disabled)")
	fs.String(KeyLogFormat, d.LogFormat, "log format (console or json)")
	fs.Int(KeyConcurrency, d.Concurrency, "scenarios run in parallel")
	fs.Bool(KeyHex, d.Hex, "write proof and public signals as 0x hex instead of decimal")
	fs.StringSlice(KeyScenarios, nil, "scenario names to run (default: all)")
	fs.String(KeyMetricsFile, "", "write prometheus metrics to this file after a run")
}

// Load resolves the configuration. file may be empty, in which case
// ./zkharness.yaml is read if present. fs may be nil.
func Load(fs *pflag.FlagSet, file string) (*Config, error) {
	v := viper.New()
	d := Default()
	v.SetDefault(KeyArtifactsDir, d.ArtifactsDir)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyLogFormat, d.LogFormat)
	v.SetDefault(KeyConcurrency, d.Concurrency)
	v.SetDefault(KeyHex, d.Hex)
	v.SetDefault(KeyScenarios, []string{})
	v.SetDefault(KeyMetricsFile, "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	} else {
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.ArtifactsDir) == "" {
		return fmt.Errorf("%w: %s is empty", ErrInvalid, KeyArtifactsDir)
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalid, KeyLogLevel, err)
	}
	switch c.LogFormat {
	case log.FormatConsole, log.FormatJSON:
	default:
		return fmt.Errorf("%w: %s %q (want %s or %s)", ErrInvalid, KeyLogFormat, c.LogFormat, log.FormatConsole, log.FormatJSON)
	}
	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("%w: %s must be in [1, 64], got %d", ErrInvalid, KeyConcurrency, c.Concurrency)
	}
	return nil
}
