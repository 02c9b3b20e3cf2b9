// Package migration orchestrates repository and graph movement between
// repository servers. One export per repository is fanned out across every
// configured target, batches tolerate per-item failures, and graph transfers
// follow a verify-then-single-reimport state machine.
package migration
