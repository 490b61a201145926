package observability

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Metrics provides basic in-memory counters.
type Metrics struct {
	mu              sync.Mutex
	requestCount    map[string]int64
	requestDuration map[string]time.Duration
	errorCount      map[string]int64
	dispatchCount   map[string]int64
	broadcastFailed int64
}

// Dispatch outcomes.
const (
	DispatchClaimed  = "claimed"
	DispatchIdle     = "idle"
	DispatchConflict = "conflict"
	DispatchGaveUp   = "exhausted"
)

// NewMetrics initializes metrics storage.
func NewMetrics() *Metrics {
	return &Metrics{
		requestCount:    make(map[string]int64),
		requestDuration: make(map[string]time.Duration),
		errorCount:      make(map[string]int64),
		dispatchCount:   make(map[string]int64),
	}
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	key := pathKey(path, method, status)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestCount[key]++
	m.requestDuration[key] += duration
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	key := path + "|" + method + "|" + code
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorCount[key]++
}

// RecordDispatch counts a call-next outcome for branch.
func (m *Metrics) RecordDispatch(branchID, outcome string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dispatchCount[branchID+"|"+outcome]++
}

// RecordBroadcastFailure counts an event that could not be relayed.
func (m *Metrics) RecordBroadcastFailure() {
	if m == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcastFailed++
}

// DispatchCount returns the count for branch and outcome.
func (m *Metrics) DispatchCount(branchID, outcome string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dispatchCount[branchID+"|"+outcome]
}

// BroadcastFailures returns the number of failed relays.
func (m *Metrics) BroadcastFailures() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.broadcastFailed
}

// Render writes the counters in the Prometheus text exposition format.
func (m *Metrics) Render() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var b strings.Builder
	b.WriteString("# TYPE http_requests_total counter\n")
	for _, key := range sortedKeys(m.requestCount) {
		parts := strings.SplitN(key, "|", 3)
		fmt.Fprintf(&b, "http_requests_total{path=%q,method=%q,status=%q} %d\n", parts[0], parts[1], parts[2], m.requestCount[key])
	}
	b.WriteString("# TYPE http_request_duration_seconds_sum counter\n")
	for _, key := range sortedKeys(m.requestDuration) {
		parts := strings.SplitN(key, "|", 3)
		fmt.Fprintf(&b, "http_request_duration_seconds_sum{path=%q,method=%q,status=%q} %g\n", parts[0], parts[1], parts[2], m.requestDuration[key].Seconds())
	}
	b.WriteString("# TYPE http_errors_total counter\n")
	for _, key := range sortedKeys(m.errorCount) {
		parts := strings.SplitN(key, "|", 3)
		fmt.Fprintf(&b, "http_errors_total{path=%q,method=%q,code=%q} %d\n", parts[0], parts[1], parts[2], m.errorCount[key])
	}
	b.WriteString("# TYPE dispatch_calls_total counter\n")
	for _, key := range sortedKeys(m.dispatchCount) {
		parts := strings.SplitN(key, "|", 2)
		fmt.Fprintf(&b, "dispatch_calls_total{branch=%q,outcome=%q} %d\n", parts[0], parts[1], m.dispatchCount[key])
	}
	b.WriteString("# TYPE event_broadcast_failures_total counter\n")
	fmt.Fprintf(&b, "event_broadcast_failures_total %d\n", m.broadcastFailed)
	return b.String()
}

func sortedKeys[V any](in map[string]V) []string {
	keys := make([]string, 0, len(in))
	for k := range in {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func pathKey(path, method string, status int) string {
	return path + "|" + method + "|" + strconv.Itoa(status)
}
