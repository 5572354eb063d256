// Package services defines the shared error taxonomy and context annotation
// helpers used by the pipeline and the external service clients.
//
// Errors are tagged with sentinel markers so the orchestrator can decide
// whether a failure is fatal to the run (validation, configuration, internal
// invariant) or segment-local and retryable (transient, timeout, external
// tool). Context annotations carry the segment index, stage name, and run
// and request identifiers into structured logs.
package services
