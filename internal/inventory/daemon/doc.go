// Package daemon keeps the catalog and the spreadsheets reconciled without
// an operator invoking the CLI.
//
// A Daemon runs every sync pipeline on a fixed interval and, optionally,
// when a watched CSV workbook changes on disk:
//
//	┌────────────┐     ┌──────────┐
//	│ ticker     │────▶│          │
//	├────────────┤     │ trigger  │────▶ Runner.SyncAll
//	│ FileWatcher│────▶│ (cap 1)  │
//	└────────────┘     └──────────┘
//
// Triggers are coalesced: while a sync is running at most one further sync
// is queued, however many ticks or file events arrive. A sync that is in
// flight when the daemon stops is allowed to finish its current step and
// is then canceled.
//
// The watcher compares file contents against a fingerprint taken after
// each sync, so the daemon's own write-back to the workbook does not
// schedule another run.
package daemon
