// Package connectors provides implementations of the Connector interface
// for the supported sources. Each connector knows how to page new items
// out of one provider API (Slack, Notion, Linear, Gmail) and map them to
// documents.
//
// Cursors are opaque to everything outside the owning connector: the
// sync orchestrator stores and replays them verbatim.
package connectors
