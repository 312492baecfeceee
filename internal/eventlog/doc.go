// Package eventlog provides the append-only event store that reconstruction
// reads from.
//
// Events are grouped into streams named "{aggregateType}-{id}". Within a
// stream every event carries a 1-based sequence number assigned on append, and
// streams are always read in ascending sequence order.
//
// The store is SQLite in WAL mode with a single open connection. Stream reads
// are paged so that no connection is held while callers apply events.
package eventlog
