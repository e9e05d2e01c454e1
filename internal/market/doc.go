// Package market tracks the instruments the collector follows.
//
// The Registry discovers open markets for each configured category, keeps
// every instrument it has ever seen in memory, and maintains the active set
// that the stream consumer and poller read. Instruments are never removed;
// only their status moves (active, closed, settled).
package market
