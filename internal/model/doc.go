// Package model defines the records shared by the collector's components.
//
// Conventions:
//   - Prices: integer cents (0-100), as quoted by the exchange
//   - Timestamps: Unix seconds, with a parallel millisecond field on snapshots and trades
//   - Tickers: string keys; trade IDs: uuid.NullUUID (absent when the exchange omits one)
//
// Optional numeric fields are pointers; nil means the exchange did not send a value.
package model
