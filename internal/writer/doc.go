// Package writer is the single path from ingestion to PostgreSQL.
//
// Snapshots are queued and written in batches; trades, instruments, orderbook
// depth, and health records are written immediately. Instrument rows are
// upserted by ticker; everything else is append-only.
//
// Durability is best-effort: a failed write drops the affected records and
// is logged and counted, never retried.
package writer
