// Package database owns the PostgreSQL connection pool, the collector's
// table definitions, and read-side queries used for warm start.
//
// Tables:
//   - market_metadata (upsert by market_ticker)
//   - market_snapshots, trades, orderbook_depth, collection_health (append-only)
package database
