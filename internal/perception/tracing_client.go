package perception

import (
	"context"
	"sync"
	"time"

	"lhihi/internal/logging"
)

// Trace records one backend call.
type Trace struct {
	BackendID  string        `json:"backend_id"`
	Model      string        `json:"model"`
	Duration   time.Duration `json:"duration"`
	ToolCalls  int           `json:"tool_calls"`
	Success    bool          `json:"success"`
	Error      string        `json:"error,omitempty"`
	ResponseLn int           `json:"response_len"`
	Timestamp  time.Time     `json:"timestamp"`
}

// TracingBackend wraps a Backend, auditing every call and keeping the most
// recent traces in memory.
type TracingBackend struct {
	underlying Backend

	mu     sync.Mutex
	traces []Trace
	limit  int
}

// NewTracingBackend wraps b. limit bounds the retained traces (0 keeps 32).
func NewTracingBackend(b Backend, limit int) *TracingBackend {
	if limit <= 0 {
		limit = 32
	}
	return &TracingBackend{underlying: b, limit: limit}
}

func (t *TracingBackend) ID() string { return t.underlying.ID() }

func (t *TracingBackend) Capabilities() Capabilities { return t.underlying.Capabilities() }

// Unwrap returns the wrapped backend.
func (t *TracingBackend) Unwrap() Backend { return t.underlying }

func (t *TracingBackend) Generate(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	resp, err := t.underlying.Generate(ctx, req)
	dur := time.Since(start)

	tr := Trace{
		BackendID: t.underlying.ID(),
		Model:     req.Model,
		Duration:  dur,
		Success:   err == nil,
		Timestamp: start,
	}
	if err != nil {
		tr.Error = err.Error()
	} else if resp != nil {
		tr.Model = resp.Model
		tr.ToolCalls = len(resp.ToolCalls)
		tr.ResponseLn = len(resp.Text)
	}
	logging.AuditFrom(ctx).BackendCall(tr.BackendID, tr.Model, dur, err)

	t.mu.Lock()
	t.traces = append(t.traces, tr)
	if len(t.traces) > t.limit {
		t.traces = t.traces[len(t.traces)-t.limit:]
	}
	t.mu.Unlock()

	return resp, err
}

// Traces returns a copy of the retained traces, oldest first.
func (t *TracingBackend) Traces() []Trace {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Trace, len(t.traces))
	copy(out, t.traces)
	return out
}
