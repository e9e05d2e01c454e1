package metrics

// Component names.
const (
	RESTPoller = "rest_poller"
	Database   = "database"
	Discovery  = "discovery"
	WebSocket  = "websocket"
)

// Counter and gauge names.
const (
	TotalPolls     = "total_polls"
	FailedPolls    = "failed_polls"
	MarketsTracked = "markets_tracked"

	TotalInserts  = "total_inserts"
	FailedInserts = "failed_inserts"
	QueueSize     = "queue_size"

	MarketsFound      = "markets_found"
	LastDiscoveryTime = "last_discovery_time"
	DiscoveryCount    = "discovery_count"

	IsConnected       = "is_connected"
	MessagesReceived  = "messages_received"
	MessagesPerMinute = "messages_per_minute"
	SubscribedMarkets = "subscribed_markets"
	ReconnectCount    = "reconnect_count"
)

// Recorder receives component counters. Implementations must be safe for
// concurrent use.
type Recorder interface {
	// Record sets metric to value.
	Record(component, metric string, value any)
	// Increment adds delta to a numeric metric, starting from zero.
	Increment(component, metric string, delta int64)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Record(string, string, any)      {}
func (Nop) Increment(string, string, int64) {}

// OrNop returns r, or Nop when r is nil.
func OrNop(r Recorder) Recorder {
	if r == nil {
		return Nop{}
	}
	return r
}
