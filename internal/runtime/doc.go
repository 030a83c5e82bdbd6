// Package runtime provides the execution context for rail commands.
//
// It encapsulates shared dependencies and configuration needed by commands:
// the workspace configuration, the monorepo handle, the logger, and the
// security gate.
package runtime
