package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Metrics holds all application metrics
type Metrics struct {
	mu sync.RWMutex

	// Pipeline metrics
	loadsByKind    map[string]int64
	filesRead      int64
	filesSkipped   int64
	rowsLoaded     int64
	lastLoadByKind map[string]time.Duration

	// Cache metrics
	cacheHits          int64
	cacheMisses        int64
	cacheInvalidations int64

	// Auth metrics
	loginsSucceeded int64
	loginsFailed    int64

	// WebSocket metrics
	WebSocketConnectionsTotal    int64
	WebSocketDisconnectionsTotal int64
	WebSocketMessagesTotal       int64
	WebSocketErrorsTotal         int64
	activeConnections            int64

	// HTTP metrics
	httpRequestsTotal    map[string]map[int]int64 // endpoint -> status -> count
	httpRequestDurations map[string][]float64     // endpoint -> durations

	// Timing
	startTime time.Time
}

// Global metrics instance
var instance *Metrics
var once sync.Once

// Get returns the singleton metrics instance
func Get() *Metrics {
	once.Do(func() {
		instance = New()
	})
	return instance
}

// New returns an empty, independent metrics set
func New() *Metrics {
	return &Metrics{
		loadsByKind:          make(map[string]int64),
		lastLoadByKind:       make(map[string]time.Duration),
		httpRequestsTotal:    make(map[string]map[int]int64),
		httpRequestDurations: make(map[string][]float64),
		startTime:            time.Now(),
	}
}

// RecordLoad records one assembled table
func (m *Metrics) RecordLoad(kind string, rows int, duration time.Duration) {
	m.mu.Lock()
	m.loadsByKind[kind]++
	m.rowsLoaded += int64(rows)
	m.lastLoadByKind[kind] = duration
	m.mu.Unlock()
}

// RecordFileRead increments the source files read counter
func (m *Metrics) RecordFileRead() {
	m.mu.Lock()
	m.filesRead++
	m.mu.Unlock()
}

// RecordFileSkipped increments the unreadable or unusable file counter
func (m *Metrics) RecordFileSkipped() {
	m.mu.Lock()
	m.filesSkipped++
	m.mu.Unlock()
}

// RecordCacheHit increments the cache hit counter
func (m *Metrics) RecordCacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

// RecordCacheMiss increments the cache miss counter
func (m *Metrics) RecordCacheMiss() {
	m.mu.Lock()
	m.cacheMisses++
	m.mu.Unlock()
}

// RecordCacheInvalidation increments the cache purge counter
func (m *Metrics) RecordCacheInvalidation() {
	m.mu.Lock()
	m.cacheInvalidations++
	m.mu.Unlock()
}

// RecordLogin records a login attempt outcome
func (m *Metrics) RecordLogin(ok bool) {
	m.mu.Lock()
	if ok {
		m.loginsSucceeded++
	} else {
		m.loginsFailed++
	}
	m.mu.Unlock()
}

// RecordWebSocketConnect increments connection counters
func (m *Metrics) RecordWebSocketConnect() {
	m.mu.Lock()
	m.WebSocketConnectionsTotal++
	m.activeConnections++
	m.mu.Unlock()
}

// RecordWebSocketDisconnect increments disconnection counter
func (m *Metrics) RecordWebSocketDisconnect() {
	m.mu.Lock()
	m.WebSocketDisconnectionsTotal++
	m.activeConnections--
	m.mu.Unlock()
}

// RecordWebSocketMessage increments message counter
func (m *Metrics) RecordWebSocketMessage() {
	m.mu.Lock()
	m.WebSocketMessagesTotal++
	m.mu.Unlock()
}

// RecordWebSocketError increments WebSocket error counter
func (m *Metrics) RecordWebSocketError() {
	m.mu.Lock()
	m.WebSocketErrorsTotal++
	m.mu.Unlock()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint string, statusCode int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.httpRequestsTotal[endpoint] == nil {
		m.httpRequestsTotal[endpoint] = make(map[int]int64)
	}
	m.httpRequestsTotal[endpoint][statusCode]++

	// Keep last 100 durations per endpoint
	if len(m.httpRequestDurations[endpoint]) >= 100 {
		m.httpRequestDurations[endpoint] = m.httpRequestDurations[endpoint][1:]
	}
	m.httpRequestDurations[endpoint] = append(m.httpRequestDurations[endpoint], duration.Seconds())
}

// GetActiveConnections returns current WebSocket connections
func (m *Metrics) GetActiveConnections() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeConnections
}

// CacheStats returns the hit and miss counters
func (m *Metrics) CacheStats() (hits, misses int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cacheHits, m.cacheMisses
}

// FileStats returns the read and skipped file counters
func (m *Metrics) FileStats() (read, skipped int64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.filesRead, m.filesSkipped
}

// HTTPRequests returns the request count of an endpoint across statuses
func (m *Metrics) HTTPRequests(endpoint string) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var n int64
	for _, c := range m.httpRequestsTotal[endpoint] {
		n += c
	}
	return n
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.RLock()
		defer m.mu.RUnlock()

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		write := func(name string, value interface{}, labels ...string) {
			labelStr := ""
			if len(labels) > 0 {
				labelStr = "{"
				for i := 0; i < len(labels); i += 2 {
					if i > 0 {
						labelStr += ","
					}
					labelStr += labels[i] + "=\"" + labels[i+1] + "\""
				}
				labelStr += "}"
			}

			switch v := value.(type) {
			case int:
				w.Write([]byte(name + labelStr + " " + strconv.Itoa(v) + "\n"))
			case int64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatInt(v, 10) + "\n"))
			case float64:
				w.Write([]byte(name + labelStr + " " + strconv.FormatFloat(v, 'f', 6, 64) + "\n"))
			}
		}

		write("agentkpi_uptime_seconds", time.Since(m.startTime).Seconds())

		// Pipeline
		for _, kind := range sortedKeys(m.loadsByKind) {
			write("agentkpi_table_loads_total", m.loadsByKind[kind], "kind", kind)
			write("agentkpi_table_load_duration_seconds", m.lastLoadByKind[kind].Seconds(), "kind", kind)
		}
		write("agentkpi_files_read_total", m.filesRead)
		write("agentkpi_files_skipped_total", m.filesSkipped)
		write("agentkpi_rows_loaded_total", m.rowsLoaded)

		// Cache
		write("agentkpi_cache_hits_total", m.cacheHits)
		write("agentkpi_cache_misses_total", m.cacheMisses)
		write("agentkpi_cache_invalidations_total", m.cacheInvalidations)

		// Auth
		write("agentkpi_logins_total", m.loginsSucceeded, "result", "success")
		write("agentkpi_logins_total", m.loginsFailed, "result", "failure")

		// WebSocket
		write("agentkpi_websocket_connections_total", m.WebSocketConnectionsTotal)
		write("agentkpi_websocket_disconnections_total", m.WebSocketDisconnectionsTotal)
		write("agentkpi_websocket_active_connections", m.activeConnections)
		write("agentkpi_websocket_messages_total", m.WebSocketMessagesTotal)
		write("agentkpi_websocket_errors_total", m.WebSocketErrorsTotal)

		// HTTP
		for endpoint, statusCodes := range m.httpRequestsTotal {
			for status, count := range statusCodes {
				write("agentkpi_http_requests_total", count, "endpoint", endpoint, "status", strconv.Itoa(status))
			}
		}
		for endpoint, durations := range m.httpRequestDurations {
			if len(durations) == 0 {
				continue
			}
			var sum float64
			for _, d := range durations {
				sum += d
			}
			write("agentkpi_http_request_duration_seconds_avg", sum/float64(len(durations)), "endpoint", endpoint)
		}
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
