// Package poller implements the REST fallback collector.
//
// Every interval the Poller fetches each active market through the
// market-data governor, queues a snapshot per market, optionally pulls
// recent trades and orderbook depth, and then flushes the writer so polled
// data is never held longer than one interval.
package poller
