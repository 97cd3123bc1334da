// Package bitwatch fingerprints watched directory trees and verifies them
// against a persisted snapshot to detect bit rot, edits, additions and
// deletions.
//
// # Core API
//
// The main entry point is Engine, which ties a snapshot Repository and a
// Filesystem together:
//
//	store, err := sqlstore.Open(ctx, "sqlite", "bitwatch.db")
//	engine, err := bitwatch.NewEngine(bitwatch.Options{Repository: store})
//
// # Basic Operations
//
// Register a root and record its fingerprints:
//
//	root, err := engine.AddRoot(ctx, "/data")
//	summary, err := engine.Run(ctx, bitwatch.WholeRoot(root.ID), bitwatch.Mode{}, nil)
//
// Verify the tree later without touching the snapshot:
//
//	events, err := engine.RunAsync(ctx, bitwatch.WholeRoot(root.ID), bitwatch.Mode{Verify: true})
//	for ev := range events {
//		if ev.Outcome != nil {
//			fmt.Println(ev.Outcome.Status, ev.Outcome.RelativePath)
//		}
//	}
//
// # Hashing
//
// File hashes are streamed with one of MD5, SHA1, SHA256 or SHA512. A
// directory hash is the hash of its children's sorted "name:hash" pairs joined
// with ";", so the result does not depend on directory enumeration order.
//
// # Reports
//
// ExportManifest writes a root's recorded file hashes as a BSD tagged
// checksum file. FindDuplicates groups recorded files with identical content.
//
// # Note on Internal API
//
// The walker, reconciler and prior-snapshot index are unexported. External
// consumers should use:
//   - Engine and its methods
//   - Repository and Filesystem for plugging in storage and filesystems
//   - Result types: NodeOutcome, RunSummary, StructureEntry
//   - Configuration: LoadConfig, LoadSettings
package bitwatch
