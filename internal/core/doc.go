// Package core holds the session service behind both front ends.
//
// This package is independent of any UI or transport layer. It can be used by
// the web handlers, the CLI, or tests without modification.
//
// # Architecture
//
// A [Service] owns everything one user works on:
//
//   - Dataset: the preview loaded from the backend. Loading a different
//     dataset clears the configuration, the run and the table.
//   - Configuration: the steps.Config edited through ToggleStep, SetStep,
//     SetFill and SetTarget. Every edit is a pure function applied under the
//     service lock.
//   - Run: a job.Orchestrator. Its OnResult callback hands the completed
//     result to the service, which loads it into a table.Engine.
//   - Table: filter, sort and pagination over the transformed rows, rendered
//     with per-cell highlighting by [Service.TableView].
//
// # Locking
//
// The service never calls the orchestrator while holding its own lock,
// because the orchestrator calls back into the service with its lock held.
// The table is reloaded under the service lock together with the result, and
// TableView reads both under one read lock.
//
// # Persistence
//
// When a session.Store is configured the session is saved after each change
// and restored by [Service.Restore]. Saves from the result callback run in
// the background; [Service.Close] waits for them.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// Validation problems are returned as *job.ValidationError so they share the
// VAL codes with run validation.
package core
