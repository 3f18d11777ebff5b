// Package driving provides interfaces through which external actors
// (CLI, MCP server) drive the core services (primary/inbound ports).
package driving
