// Package store persists ingestion sources and their segments in SQLite and
// exposes helpers for driving their lifecycle.
//
// The Store manages the database connection, schema initialization, batched
// transactional segment upserts, heartbeat tracking, stale-source recovery,
// and status transitions that mirror the public source status enum. Before
// each source upsert and segment insert the connection's health is checked
// so a single failed transaction cannot poison subsequent writes; on a bad batch the
// connection is discarded and replaced outright.
//
// The database is the system of record for segments: reingesting a source
// is equivalent to deleting its segments and reinserting them, implemented
// here as an upsert on the (source_id, start_sec, end_sec, text) key rather
// than an actual delete, so concurrent readers never observe a gap.
//
// Treat this package as the single source of truth for segment-store
// semantics; schema changes bump schemaVersion in schema.go.
package store
