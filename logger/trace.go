package logger

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// TraceContext represents a traced operation context: one accepted
// connection's lifetime, or one background snapshot run, broken into named
// spans (e.g. "read-command", "dispatch", "flush-reply").
type TraceContext struct {
	TraceID     string
	Operation   string
	StartTime   time.Time
	GoroutineID int
	Remote      string
	mu          sync.Mutex
	spans       []TraceSpan
	isActive    bool
}

// TraceSpan represents a named span within a trace.
type TraceSpan struct {
	Name        string
	StartTime   time.Time
	EndTime     time.Time
	GoroutineID int
	Attributes  map[string]string
}

var (
	// Global trace storage
	activeTraces   = make(map[string]*TraceContext)
	activeTracesMu sync.RWMutex

	// Trace ID counter
	traceCounter uint64

	// Enable/disable tracing
	tracingEnabled atomic.Bool
)

// EnableTracing enables per-connection and per-command tracing.
func EnableTracing(enabled bool) {
	tracingEnabled.Store(enabled)
	if enabled {
		Info("connection and command tracing enabled")
	} else {
		Info("connection and command tracing disabled")
	}
}

// IsTracingEnabled returns whether tracing is enabled.
func IsTracingEnabled() bool {
	return tracingEnabled.Load()
}

// StartTrace begins a new trace context for one connection or background
// job. remote is the connection's remote address (or a worker/job name for
// traces not tied to a socket, e.g. "snapshot-run").
func StartTrace(operation string, remote string) *TraceContext {
	if !IsTracingEnabled() {
		return nil
	}

	traceID := fmt.Sprintf("trace_%d_%d", time.Now().UnixNano(), atomic.AddUint64(&traceCounter, 1))

	ctx := &TraceContext{
		TraceID:     traceID,
		Operation:   operation,
		StartTime:   time.Now(),
		GoroutineID: getGoroutineID(),
		Remote:      remote,
		spans:       make([]TraceSpan, 0),
		isActive:    true,
	}

	activeTracesMu.Lock()
	activeTraces[traceID] = ctx
	activeTracesMu.Unlock()

	Trace("[TRACE_START] ID=%s Op=%s Remote=%s Goroutine=%d",
		traceID, operation, remote, ctx.GoroutineID)

	return ctx
}

// StartSpan begins a new span within a trace.
func (tc *TraceContext) StartSpan(name string, attributes ...string) {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	span := TraceSpan{
		Name:        name,
		StartTime:   time.Now(),
		GoroutineID: getGoroutineID(),
		Attributes:  make(map[string]string),
	}

	for _, attr := range attributes {
		parts := strings.SplitN(attr, "=", 2)
		if len(parts) == 2 {
			span.Attributes[parts[0]] = parts[1]
		}
	}

	tc.spans = append(tc.spans, span)

	elapsed := time.Since(tc.StartTime)
	Trace("[SPAN_START] Trace=%s Span=%s Elapsed=%v Goroutine=%d Attrs=%v",
		tc.TraceID, name, elapsed, span.GoroutineID, span.Attributes)
}

// EndSpan completes the most recent open span matching name.
func (tc *TraceContext) EndSpan(name string) {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	defer tc.mu.Unlock()

	for i := len(tc.spans) - 1; i >= 0; i-- {
		if tc.spans[i].Name == name && tc.spans[i].EndTime.IsZero() {
			tc.spans[i].EndTime = time.Now()
			duration := tc.spans[i].EndTime.Sub(tc.spans[i].StartTime)
			elapsed := time.Since(tc.StartTime)

			Trace("[SPAN_END] Trace=%s Span=%s Duration=%v Elapsed=%v Goroutine=%d",
				tc.TraceID, name, duration, elapsed, getGoroutineID())
			break
		}
	}
}

// EndTrace completes the trace, logging any span that was never closed —
// often the sign of a fiber that suspended and never resumed.
func (tc *TraceContext) EndTrace() {
	if tc == nil || !tc.isActive {
		return
	}

	tc.mu.Lock()
	tc.isActive = false
	duration := time.Since(tc.StartTime)
	tc.mu.Unlock()

	activeTracesMu.Lock()
	delete(activeTraces, tc.TraceID)
	activeTracesMu.Unlock()

	tc.mu.Lock()
	defer tc.mu.Unlock()

	Trace("[TRACE_END] ID=%s Op=%s Duration=%v Spans=%d",
		tc.TraceID, tc.Operation, duration, len(tc.spans))

	for _, span := range tc.spans {
		if span.EndTime.IsZero() {
			Warn("[UNCLOSED_SPAN] Trace=%s Span=%s Started=%v Goroutine=%d",
				tc.TraceID, span.Name, span.StartTime, span.GoroutineID)
		}
	}
}

// LogLockOperation logs one lock acquire/release operation for deadlock
// diagnosis when tracing is enabled. txlock does not call it; its
// stuck-lock path logs through Warn instead.
func LogLockOperation(traceID, lockKind, lockName, operation string) {
	if !IsTracingEnabled() {
		return
	}

	goroutineID := getGoroutineID()

	buf := make([]byte, 1024)
	n := runtime.Stack(buf, false)
	stack := string(buf[:n])

	frames := strings.Split(stack, "\n")
	caller := "unknown"
	if len(frames) > 5 {
		for i := 4; i < len(frames); i += 2 {
			if !strings.Contains(frames[i], "logger.LogLockOperation") &&
				!strings.Contains(frames[i], "runtime.") {
				caller = strings.TrimSpace(frames[i])
				break
			}
		}
	}

	Trace("[LOCK_%s] Kind=%s Name=%s Goroutine=%d Caller=%s TraceID=%s",
		strings.ToUpper(operation), lockKind, lockName, goroutineID, caller, traceID)
}

// LogConnAccept logs a newly-accepted connection, the per-worker analogue of
// the original's per-socket accept trace (worker.acceptLoop calls this for
// every netio.Conn it hands off to a connection fiber).
func LogConnAccept(workerIndex int, remoteAddr string) {
	if !IsTracingEnabled() {
		return
	}
	Trace("[CONN_ACCEPT] Worker=%d Remote=%s Goroutine=%d", workerIndex, remoteAddr, getGoroutineID())
}

// LogCommandDispatch logs the start/end of one command.Registry.Dispatch
// call, the RESP-command analogue of the original's per-HTTP-request
// handler trace.
func LogCommandDispatch(traceID, command, phase string) {
	if !IsTracingEnabled() {
		return
	}
	Trace("[COMMAND_%s] Command=%s Goroutine=%d TraceID=%s",
		strings.ToUpper(phase), command, getGoroutineID(), traceID)
}

// GetActiveTraces returns currently active traces (for debugging).
func GetActiveTraces() []string {
	activeTracesMu.RLock()
	defer activeTracesMu.RUnlock()

	traces := make([]string, 0, len(activeTraces))
	for traceID, ctx := range activeTraces {
		duration := time.Since(ctx.StartTime)
		traces = append(traces, fmt.Sprintf("%s: %s (duration: %v)", traceID, ctx.Operation, duration))
	}
	return traces
}
