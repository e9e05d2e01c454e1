package health

import (
	"maps"
	"time"

	"github.com/rickgao/kalshi-collector/internal/metrics"
	"github.com/rickgao/kalshi-collector/internal/model"
)

// Thresholds applied by Evaluate.
const (
	MinPollSuccessRate   = 0.8
	MinInsertSuccessRate = 0.95
	MaxQueueSize         = 1000
	MaxDiscoveryAge      = 600 * time.Second
	MinMessagesPerMinute = 1.0
)

// Issue codes.
const (
	IssueWebSocketDisconnected = "websocket_disconnected"
	IssueLowMessageRate        = "low_message_rate"
	IssueNoPolls               = "no_polls_recorded"
	IssueLowPollSuccess        = "low_success_rate"
	IssueStaleDiscovery        = "stale_discovery"
	IssueNoMarketsFound        = "no_markets_found"
	IssueInsertFailures        = "high_insert_failure_rate"
	IssueQueueBacklog          = "large_queue_backlog"
)

// ComponentHealth is the evaluation of one component.
type ComponentHealth struct {
	Name    string         `json:"-"`
	Healthy bool           `json:"is_healthy"`
	Issues  []string       `json:"issues"`
	Metrics map[string]any `json:"metrics"`
}

// Record converts c into a persisted health record.
func (c ComponentHealth) Record(ts int64) model.HealthRecord {
	m := maps.Clone(c.Metrics)
	if m == nil {
		m = make(map[string]any)
	}
	m["is_healthy"] = c.Healthy
	m["issues"] = c.Issues
	return model.HealthRecord{
		Timestamp: ts,
		Component: c.Name,
		Metrics:   m,
		IsHealthy: c.Healthy,
	}
}

// Report is one evaluation of every configured component.
type Report struct {
	Timestamp  int64             `json:"timestamp"`
	Healthy    bool              `json:"overall_healthy"`
	Components []ComponentHealth `json:"-"`
}

// ComponentMap indexes the report by component name.
func (r Report) ComponentMap() map[string]ComponentHealth {
	out := make(map[string]ComponentHealth, len(r.Components))
	for _, c := range r.Components {
		out[c.Name] = c
	}
	return out
}

// Evaluate checks current counters against the thresholds. It has no side
// effects.
func (a *Aggregator) Evaluate(now time.Time) Report {
	report := Report{Timestamp: now.Unix(), Healthy: true}

	for _, name := range a.cfg.Components {
		m := a.Snapshot(name)

		var c ComponentHealth
		switch name {
		case metrics.WebSocket:
			c = evaluateWebSocket(m)
		case metrics.RESTPoller:
			c = evaluatePoller(m)
		case metrics.Discovery:
			c = evaluateDiscovery(m, now)
		case metrics.Database:
			c = evaluateDatabase(m)
		default:
			c = ComponentHealth{Healthy: true, Metrics: m}
		}
		c.Name = name
		if c.Issues == nil {
			c.Issues = []string{}
		}

		report.Components = append(report.Components, c)
		report.Healthy = report.Healthy && c.Healthy
	}
	return report
}

func evaluateWebSocket(m map[string]any) ComponentHealth {
	c := ComponentHealth{Healthy: true}

	connected := asBool(m[metrics.IsConnected])
	if !connected {
		c.fail(IssueWebSocketDisconnected)
	}
	rate := asFloat(m[metrics.MessagesPerMinute])
	if rate < MinMessagesPerMinute {
		c.fail(IssueLowMessageRate)
	}

	c.Metrics = map[string]any{
		metrics.IsConnected:       connected,
		metrics.MessagesPerMinute: rate,
		metrics.SubscribedMarkets: asInt64(m[metrics.SubscribedMarkets]),
		metrics.ReconnectCount:    asInt64(m[metrics.ReconnectCount]),
	}
	return c
}

func evaluatePoller(m map[string]any) ComponentHealth {
	c := ComponentHealth{Healthy: true}

	total := asInt64(m[metrics.TotalPolls])
	failed := asInt64(m[metrics.FailedPolls])

	rate := 0.0
	if total > 0 {
		rate = float64(total-failed) / float64(total)
		if rate < MinPollSuccessRate {
			c.fail(IssueLowPollSuccess)
		}
	} else {
		c.fail(IssueNoPolls)
	}

	c.Metrics = map[string]any{
		metrics.TotalPolls:     total,
		metrics.FailedPolls:    failed,
		"success_rate":         rate,
		metrics.MarketsTracked: asInt64(m[metrics.MarketsTracked]),
	}
	return c
}

func evaluateDiscovery(m map[string]any, now time.Time) ComponentHealth {
	c := ComponentHealth{Healthy: true}

	found := asInt64(m[metrics.MarketsFound])
	since := now.Unix() - asInt64(m[metrics.LastDiscoveryTime])

	if time.Duration(since)*time.Second > MaxDiscoveryAge {
		c.fail(IssueStaleDiscovery)
	}
	if found == 0 {
		c.fail(IssueNoMarketsFound)
	}

	c.Metrics = map[string]any{
		metrics.MarketsFound:         found,
		"last_discovery_seconds_ago": since,
		metrics.DiscoveryCount:       asInt64(m[metrics.DiscoveryCount]),
	}
	return c
}

func evaluateDatabase(m map[string]any) ComponentHealth {
	c := ComponentHealth{Healthy: true}

	total := asInt64(m[metrics.TotalInserts])
	failed := asInt64(m[metrics.FailedInserts])

	rate := 1.0
	if total > 0 {
		rate = float64(total-failed) / float64(total)
		if rate < MinInsertSuccessRate {
			c.fail(IssueInsertFailures)
		}
	}

	queue := asInt64(m[metrics.QueueSize])
	if queue > MaxQueueSize {
		c.fail(IssueQueueBacklog)
	}

	c.Metrics = map[string]any{
		metrics.TotalInserts:  total,
		metrics.FailedInserts: failed,
		"success_rate":        rate,
		metrics.QueueSize:     queue,
	}
	return c
}

func (c *ComponentHealth) fail(issue string) {
	c.Healthy = false
	c.Issues = append(c.Issues, issue)
}
