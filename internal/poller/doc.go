// Package poller implements the reconciliation poller.
//
// The poller:
//   - Calls Reconcile on a fixed interval (default every 5 minutes)
//   - Runs an extra cycle on Trigger, coalescing bursts into one
//   - Never runs two cycles at once
//   - Logs and counts failures without stopping
package poller
