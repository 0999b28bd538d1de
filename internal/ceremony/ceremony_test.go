// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package ceremony

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/logical-mechanism/zkharness/internal/bigjson"
	"github.com/logical-mechanism/zkharness/internal/calldata"
	"github.com/logical-mechanism/zkharness/internal/circuit"
	"github.com/logical-mechanism/zkharness/internal/keys"
	"github.com/logical-mechanism/zkharness/internal/prover"
	"github.com/logical-mechanism/zkharness/internal/verifier"
)

// --- file discovery tests (fast, no crypto) ---

func TestFindContributions_EmptyDir(t *testing.T) {
	dir := t.TempDir()
	paths, err := findContributions(dir, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 0 {
		t.Fatalf("expected 0 paths, got %d", len(paths))
	}
}

func TestFindContributions_SortOrder(t *testing.T) {
	dir := t.TempDir()
	// Create files out of order
	for _, name := range []string{"phase1_0002.bin", "phase1_0000.bin", "phase1_0001.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	// Also create a phase2 file that should NOT appear
	if err := os.WriteFile(filepath.Join(dir, "phase2_0000.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	paths, err := findContributions(dir, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(paths) != 3 {
		t.Fatalf("expected 3 paths, got %d", len(paths))
	}
	// Check sorted order
	for i, want := range []string{"phase1_0000.bin", "phase1_0001.bin", "phase1_0002.bin"} {
		if filepath.Base(paths[i]) != want {
			t.Fatalf("paths[%d] = %s, want %s", i, filepath.Base(paths[i]), want)
		}
	}
}

func TestLatestContribution_ReturnsHighest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"phase1_0000.bin", "phase1_0001.bin", "phase1_0003.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	path, idx, err := latestContribution(dir, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx != 3 {
		t.Fatalf("expected index 3, got %d", idx)
	}
	if filepath.Base(path) != "phase1_0003.bin" {
		t.Fatalf("expected phase1_0003.bin, got %s", filepath.Base(path))
	}
}

func TestLatestContribution_NoFiles(t *testing.T) {
	dir := t.TempDir()
	_, _, err := latestContribution(dir, 1)
	if !errors.Is(err, ErrNoContributions) {
		t.Fatalf("expected ErrNoContributions, got %v", err)
	}
}

func TestContributionPath_Formatting(t *testing.T) {
	got := contributionPath("/tmp/ceremony", 1, 42)
	want := "/tmp/ceremony/phase1_0042.bin"
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}

	got2 := contributionPath("/tmp/ceremony", 2, 0)
	want2 := "/tmp/ceremony/phase2_0000.bin"
	if got2 != want2 {
		t.Fatalf("got %s, want %s", got2, want2)
	}
}

// --- ceremony init tests ---

func TestInit_CreatesFiles(t *testing.T) {
	if testing.Short() {
		t.Skip("skip circuit compilation in -short mode")
	}
	dir := filepath.Join(t.TempDir(), "ceremony")
	info, err := Init(dir, circuit.Multiplier3{}, false)
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if info.Circuit != "Multiplier3" || info.Constraints < 1 || info.DomainSize < uint64(info.Constraints) {
		t.Fatalf("unexpected info %+v", info)
	}

	// Check files exist
	for _, name := range []string{"ccs.bin", "phase1_0000.bin"} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", name)
		}
	}
}

func TestInit_RefusesOverwrite(t *testing.T) {
	if testing.Short() {
		t.Skip("skip circuit compilation in -short mode")
	}
	dir := filepath.Join(t.TempDir(), "ceremony")
	if _, err := Init(dir, circuit.Multiplier3{}, false); err != nil {
		t.Fatalf("first init failed: %v", err)
	}
	// Second init without force should fail
	if _, err := Init(dir, circuit.Multiplier3{}, false); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized on second init, got %v", err)
	}
	if _, err := Init(dir, circuit.Multiplier3{}, true); err != nil {
		t.Fatalf("forced init failed: %v", err)
	}
}

// --- end-to-end ceremony test (expensive) ---

func TestCeremonyEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skip expensive ceremony test in -short mode")
	}

	dir := filepath.Join(t.TempDir(), "ceremony")

	// 1. Init
	t.Log("Init...")
	if _, err := Init(dir, circuit.Multiplier3{}, false); err != nil {
		t.Fatalf("init: %v", err)
	}

	// 2. Two Phase1 contributions
	t.Log("Phase1 contribute #1...")
	idx1, hash1, err := ContributePhase1(dir)
	if err != nil {
		t.Fatalf("phase1 contribute 1: %v", err)
	}
	if idx1 != 1 || hash1 == "" {
		t.Fatalf("unexpected idx=%d hash=%s", idx1, hash1)
	}

	t.Log("Phase1 contribute #2...")
	idx2, hash2, err := ContributePhase1(dir)
	if err != nil {
		t.Fatalf("phase1 contribute 2: %v", err)
	}
	if idx2 != 2 || hash2 == "" {
		t.Fatalf("unexpected idx=%d hash=%s", idx2, hash2)
	}
	if hash1 == hash2 {
		t.Fatal("two contributions should have different hashes")
	}

	// 3. Verify Phase1
	t.Log("Phase1 verify...")
	count, err := VerifyPhase1(dir)
	if err != nil {
		t.Fatalf("phase1 verify: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 verified, got %d", count)
	}

	// 4. Finalize Phase1
	t.Log("Phase1 finalize...")
	beacon1 := []byte("test beacon phase1")
	if err := FinalizePhase1(dir, beacon1); err != nil {
		t.Fatalf("phase1 finalize: %v", err)
	}

	// Check commons.bin and phase2_0000.bin exist
	for _, name := range []string{"commons.bin", "phase2_0000.bin"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s after phase1 finalize: %v", name, err)
		}
	}

	// 5. Phase2 contribution
	t.Log("Phase2 contribute #1...")
	idx3, hash3, err := ContributePhase2(dir)
	if err != nil {
		t.Fatalf("phase2 contribute: %v", err)
	}
	if idx3 != 1 || hash3 == "" {
		t.Fatalf("unexpected idx=%d hash=%s", idx3, hash3)
	}

	// 6. Verify Phase2
	t.Log("Phase2 verify...")
	count2, err := VerifyPhase2(dir)
	if err != nil {
		t.Fatalf("phase2 verify: %v", err)
	}
	if count2 != 1 {
		t.Fatalf("expected 1 verified, got %d", count2)
	}

	// 7. Finalize Phase2
	t.Log("Phase2 finalize...")
	beacon2 := []byte("test beacon phase2")
	if _, err := FinalizePhase2(dir, beacon2); err != nil {
		t.Fatalf("phase2 finalize: %v", err)
	}

	// Check pk.bin, vk.bin, verifier.sol exist
	for _, name := range []string{keys.PKFile, keys.VKFile, keys.SolidityFile} {
		info, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			t.Fatalf("missing %s after phase2 finalize: %v", name, err)
		}
		if info.Size() == 0 {
			t.Fatalf("%s is empty", name)
		}
	}

	// 8. Prove using ceremony-produced keys, loaded the way the harness does
	t.Log("Prove with ceremony keys...")
	k, err := keys.Load(dir, circuit.Groth16)
	if err != nil {
		t.Fatalf("load ceremony keys: %v", err)
	}
	in := map[string]*big.Int{"a": big.NewInt(11111), "b": big.NewInt(22222), "c": big.NewInt(3)}
	res, err := prover.Prove(context.Background(), circuit.Multiplier3{}, k, in)
	if err != nil {
		t.Fatalf("prove from ceremony setup: %v", err)
	}

	// 9. Verify through the contract
	proof, err := bigjson.DecodeUnstringify(res.Proof)
	if err != nil {
		t.Fatal(err)
	}
	signals, err := bigjson.DecodeUnstringify(res.Public)
	if err != nil {
		t.Fatal(err)
	}
	text, err := calldata.Groth16(proof, signals)
	if err != nil {
		t.Fatalf("calldata: %v", err)
	}
	argv, err := calldata.Argv(text)
	if err != nil {
		t.Fatal(err)
	}
	call, err := calldata.ParseGroth16(argv)
	if err != nil {
		t.Fatal(err)
	}
	contract, err := verifier.Deploy(k)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	ok, err := contract.VerifyGroth16(context.Background(), call)
	if err != nil || !ok {
		t.Fatalf("contract verification: ok=%v err=%v", ok, err)
	}

	t.Log("Ceremony end-to-end succeeded")
}

// --- error path tests ---

func TestVerifyPhase1_ReplayedContribution(t *testing.T) {
	if testing.Short() {
		t.Skip("skip circuit compilation in -short mode")
	}
	dir := filepath.Join(t.TempDir(), "ceremony")
	if _, err := Init(dir, circuit.Multiplier3{}, false); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, _, err := ContributePhase1(dir); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	// A contribution that does not build on its predecessor must be caught.
	data, err := os.ReadFile(contributionPath(dir, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(contributionPath(dir, 1, 2), data, 0o644); err != nil {
		t.Fatal(err)
	}
	count, err := VerifyPhase1(dir)
	if !errors.Is(err, ErrInvalidContribution) {
		t.Fatalf("expected ErrInvalidContribution, got %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 verified before the replay, got %d", count)
	}
}

func TestContributePhase1_NoCeremony(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "noexist")
	_, _, err := ContributePhase1(dir)
	if err == nil {
		t.Fatal("expected error for missing ceremony dir")
	}
}

func TestContributePhase2_NoCeremony(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "noexist")
	_, _, err := ContributePhase2(dir)
	if err == nil {
		t.Fatal("expected error for missing ceremony dir")
	}
}

func TestVerifyPhase1_NotEnoughContributions(t *testing.T) {
	dir := t.TempDir()
	// Create only the identity file
	if err := os.WriteFile(filepath.Join(dir, "phase1_0000.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := VerifyPhase1(dir)
	if !errors.Is(err, ErrNoContributions) {
		t.Fatalf("expected ErrNoContributions for single file, got %v", err)
	}
}

func TestVerifyPhase2_NotEnoughContributions(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "phase2_0000.bin"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := VerifyPhase2(dir)
	if err == nil {
		t.Fatal("expected error for single file (no contributions)")
	}
}

func TestFinalizePhase1_NoCeremony(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "noexist")
	err := FinalizePhase1(dir, []byte("beacon"))
	if err == nil {
		t.Fatal("expected error for missing ceremony dir")
	}
}

func TestFinalizePhase2_NoCeremony(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "noexist")
	_, err := FinalizePhase2(dir, []byte("beacon"))
	if err == nil {
		t.Fatal("expected error for missing ceremony dir")
	}
}
