// Package server exposes reconciliation over HTTP for a companion server or
// an operator's browser.
//
// Routes:
//
//   - GET  /obssync/status: whether a pass is running and the last report
//   - GET  /obssync/reports and /obssync/reports/{id}: stored reports
//   - POST /obssync/reconcile: start a pass in the background (202, or 409 when busy)
//   - POST /obssync/preview: dry-run pass, answered synchronously
//   - GET  /obssync/permissions: registered permission descriptors, filtered by ?match=
//   - GET  /obssync/config: effective configuration
//   - GET  /obssync/event: reconciliation events as Server-Sent Events
//
// The Server is also the plugin.Host: Start registers the plugin's
// permissions in its registry and triggers the startup pass.
package server
