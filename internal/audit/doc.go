// Package audit records authentication activity as structured events.
//
// The auth core emits events after its storage work has committed. Emission
// goes through a Dispatcher that buffers events and writes them to a Sink on
// its own goroutine, so a slow or failing sink never delays or fails the
// operation that produced the event.
//
// Sinks:
//   - SQLiteSink appends to the audit_logs table
//   - MQTTSink publishes JSON to advisorpro/audit/{tenant}/{action}
//   - InfluxSink writes auth_events points
//   - MultiSink fans out to several sinks
//   - NoopSink discards everything
//
// The package is write-only. Querying and rendering the trail is left to
// other tools.
package audit
