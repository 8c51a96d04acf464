package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics holds process-wide counters. Sessions only ever increment them;
// no session reads another session's state through here.
type Metrics struct {
	mu sync.RWMutex

	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	EndpointRequests   map[string]int64
	EndpointErrors     map[string]int64

	ServiceCalls   map[string]int64
	ServiceErrors  map[string]int64
	ServiceLatency map[string][]time.Duration

	CircuitBreakerState    map[string]string
	CircuitBreakerFailures map[string]int64

	// Session counters keyed by family then label value.
	Counters map[string]map[string]int64
	Live     int64

	StartTime time.Time
}

// Counter families.
const (
	SessionsStarted   = "sessions_started_total"
	SessionsEnded     = "sessions_ended_total"
	FilterRejections  = "transcript_rejections_total"
	ResponseRequests  = "response_requests_total"
	BargeIns          = "barge_ins_total"
	FailsafeFires     = "failsafe_fires_total"
	ToolCalls         = "tool_calls_total"
	Disambiguations   = "disambiguations_total"
	BroadcastFailures = "live_state_write_failures_total"
)

var counterLabels = map[string]string{
	SessionsStarted:   "channel",
	SessionsEnded:     "reason",
	FilterRejections:  "reason",
	ResponseRequests:  "kind",
	BargeIns:          "channel",
	FailsafeFires:     "kind",
	ToolCalls:         "tool",
	Disambiguations:   "outcome",
	BroadcastFailures: "sink",
}

var globalMetrics = newMetrics()

func newMetrics() *Metrics {
	return &Metrics{
		EndpointRequests:       make(map[string]int64),
		EndpointErrors:         make(map[string]int64),
		ServiceCalls:           make(map[string]int64),
		ServiceErrors:          make(map[string]int64),
		ServiceLatency:         make(map[string][]time.Duration),
		CircuitBreakerState:    make(map[string]string),
		CircuitBreakerFailures: make(map[string]int64),
		Counters:               make(map[string]map[string]int64),
		StartTime:              time.Now(),
	}
}

// Inc increments a session counter family for one label value.
func Inc(family, label string) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	m, ok := globalMetrics.Counters[family]
	if !ok {
		m = make(map[string]int64)
		globalMetrics.Counters[family] = m
	}
	m[label]++
}

// Count returns the current value of a counter. Used by tests.
func Count(family, label string) int64 {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()
	return globalMetrics.Counters[family][label]
}

// SessionOpened and SessionClosed track the live-session gauge.
func SessionOpened(channel string) {
	Inc(SessionsStarted, channel)
	globalMetrics.mu.Lock()
	globalMetrics.Live++
	globalMetrics.mu.Unlock()
}

func SessionClosed(reason string) {
	Inc(SessionsEnded, reason)
	globalMetrics.mu.Lock()
	globalMetrics.Live--
	globalMetrics.mu.Unlock()
}

// RecordRequest records an HTTP request
func RecordRequest(endpoint string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.TotalRequests++
	if success {
		globalMetrics.SuccessfulRequests++
	} else {
		globalMetrics.FailedRequests++
		globalMetrics.EndpointErrors[endpoint]++
	}
	globalMetrics.EndpointRequests[endpoint]++
}

// RecordServiceCall records a collaborator call
func RecordServiceCall(service string, success bool, latency time.Duration) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.ServiceCalls[service]++
	if !success {
		globalMetrics.ServiceErrors[service]++
	}

	// Keep only the last 100 latency measurements per service
	if len(globalMetrics.ServiceLatency[service]) >= 100 {
		globalMetrics.ServiceLatency[service] = globalMetrics.ServiceLatency[service][1:]
	}
	globalMetrics.ServiceLatency[service] = append(globalMetrics.ServiceLatency[service], latency)
}

// UpdateCircuitBreaker updates circuit breaker metrics
func UpdateCircuitBreaker(service, state string, failures int64) {
	globalMetrics.mu.Lock()
	defer globalMetrics.mu.Unlock()

	globalMetrics.CircuitBreakerState[service] = state
	globalMetrics.CircuitBreakerFailures[service] = failures
}

// GetMetrics returns current metrics
func GetMetrics() map[string]interface{} {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	serviceAvgLatency := make(map[string]float64)
	for service, latencies := range globalMetrics.ServiceLatency {
		if len(latencies) == 0 {
			continue
		}
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		serviceAvgLatency[service] = sum.Seconds() / float64(len(latencies))
	}

	counters := make(map[string]map[string]int64, len(globalMetrics.Counters))
	for family, values := range globalMetrics.Counters {
		cp := make(map[string]int64, len(values))
		for k, v := range values {
			cp[k] = v
		}
		counters[family] = cp
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(globalMetrics.StartTime).Seconds(),
		"live_sessions":  globalMetrics.Live,
		"requests": map[string]interface{}{
			"total":      globalMetrics.TotalRequests,
			"successful": globalMetrics.SuccessfulRequests,
			"failed":     globalMetrics.FailedRequests,
			"endpoints":  copyMap(globalMetrics.EndpointRequests),
		},
		"services": map[string]interface{}{
			"calls":               copyMap(globalMetrics.ServiceCalls),
			"errors":              copyMap(globalMetrics.ServiceErrors),
			"latency_avg_seconds": serviceAvgLatency,
		},
		"circuit_breakers": map[string]interface{}{
			"state":    copyStringMap(globalMetrics.CircuitBreakerState),
			"failures": copyMap(globalMetrics.CircuitBreakerFailures),
		},
		"sessions": counters,
	}
}

// GetPrometheusMetrics returns metrics in Prometheus text format
func GetPrometheusMetrics() string {
	globalMetrics.mu.RLock()
	defer globalMetrics.mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP cab_agent_uptime_seconds Process uptime in seconds\n")
	b.WriteString("# TYPE cab_agent_uptime_seconds gauge\n")
	fmt.Fprintf(&b, "cab_agent_uptime_seconds %.2f\n", time.Since(globalMetrics.StartTime).Seconds())

	b.WriteString("# HELP cab_agent_live_sessions Sessions currently running\n")
	b.WriteString("# TYPE cab_agent_live_sessions gauge\n")
	fmt.Fprintf(&b, "cab_agent_live_sessions %d\n", globalMetrics.Live)

	b.WriteString("# HELP cab_agent_requests_total HTTP requests\n")
	b.WriteString("# TYPE cab_agent_requests_total counter\n")
	fmt.Fprintf(&b, "cab_agent_requests_total{status=\"successful\"} %d\n", globalMetrics.SuccessfulRequests)
	fmt.Fprintf(&b, "cab_agent_requests_total{status=\"failed\"} %d\n", globalMetrics.FailedRequests)

	b.WriteString("# HELP cab_agent_service_calls_total Collaborator calls\n")
	b.WriteString("# TYPE cab_agent_service_calls_total counter\n")
	for _, service := range sortedKeys(globalMetrics.ServiceCalls) {
		fmt.Fprintf(&b, "cab_agent_service_calls_total{service=%q} %d\n", service, globalMetrics.ServiceCalls[service])
	}

	families := make([]string, 0, len(globalMetrics.Counters))
	for family := range globalMetrics.Counters {
		families = append(families, family)
	}
	sort.Strings(families)
	for _, family := range families {
		label := counterLabels[family]
		if label == "" {
			label = "label"
		}
		fmt.Fprintf(&b, "# TYPE cab_agent_%s counter\n", family)
		values := globalMetrics.Counters[family]
		for _, v := range sortedKeys(values) {
			fmt.Fprintf(&b, "cab_agent_%s{%s=%q} %d\n", family, label, v, values[v])
		}
	}

	return b.String()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func copyMap(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyStringMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
