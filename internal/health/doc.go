// Package health aggregates component counters and evaluates them against
// fixed thresholds.
//
// Components report through the metrics.Recorder methods of Aggregator.
// Run evaluates every interval, persists one record per component and keeps
// the latest Report for the HTTP handler.
package health
