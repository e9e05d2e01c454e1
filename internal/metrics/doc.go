// Package metrics names the health counters each component reports and the
// interface they report through.
//
// Components and their counters:
//   - rest_poller: total_polls, failed_polls, markets_tracked
//   - database: total_inserts, failed_inserts, queue_size
//   - discovery: markets_found, last_discovery_time, discovery_count
//   - websocket: is_connected, messages_received, messages_per_minute,
//     subscribed_markets, reconnect_count
package metrics
