// Package stream consumes the Kalshi WebSocket feed.
//
// A Consumer subscribes to the global ticker channel plus per-market trade
// and orderbook_delta channels for every active market, turns ticker frames
// into snapshots and trade frames into trades, and reconnects with
// exponential backoff until its attempt budget is spent.
//
// States: Disconnected -> Connecting -> Streaming -> Reconnecting -> ...
// Terminated is entered once reconnect attempts are exhausted.
package stream
