// Package triage provides the business boundary for incident auto-triage.
// It defines the decision Policy (pure verdict-to-action mapping), the
// Executor (idempotent, retried application of decisions), the Pipeline
// (per-run orchestration with bounded parallelism), the Service (run
// lifecycle, single-flight dispatch), the Store interface (append-only
// audit log) and the domain models.
package triage
