package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"time"

	"talentcore/pkg/domain"
)

// Recorder is a sink for both operation and notification metrics.
type Recorder interface {
	MetricsRecorder
	NotificationRecorder
}

// TeeRecorder fans every observation out to each recorder in order.
func TeeRecorder(recorders ...Recorder) Recorder {
	return teeRecorder(recorders)
}

type teeRecorder []Recorder

func (t teeRecorder) Observe(ctx context.Context, operation, outcome string, duration time.Duration) {
	for _, r := range t {
		r.Observe(ctx, operation, outcome, duration)
	}
}

func (t teeRecorder) Notification(channel, result string) {
	for _, r := range t {
		r.Notification(channel, result)
	}
}

// ExpvarRecorder exports counters under a single expvar map for deployments
// that read /debug/vars. Keys are "operations" ("<op>/<outcome>" counts),
// "duration_ms" (total per op) and "notifications" ("<channel>/<result>").
type ExpvarRecorder struct {
	name          string
	operations    *expvar.Map
	durations     *expvar.Map
	notifications *expvar.Map
}

// NewExpvarRecorder publishes a recorder as name. expvar names are process
// global, so publishing the same name twice is an error.
func NewExpvarRecorder(name string) (*ExpvarRecorder, error) {
	if name == "" {
		return nil, fmt.Errorf("expvar recorder needs a name")
	}
	if expvar.Get(name) != nil {
		return nil, fmt.Errorf("expvar %q already published", name)
	}
	r := &ExpvarRecorder{
		name:          name,
		operations:    new(expvar.Map).Init(),
		durations:     new(expvar.Map).Init(),
		notifications: new(expvar.Map).Init(),
	}
	root := expvar.NewMap(name)
	root.Set("operations", r.operations)
	root.Set("duration_ms", r.durations)
	root.Set("notifications", r.notifications)
	return r, nil
}

// Name is the expvar key the recorder is published under.
func (r *ExpvarRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarRecorder) Observe(_ context.Context, operation, outcome string, duration time.Duration) {
	if operation == "" {
		return
	}
	r.operations.Add(operation+"/"+outcome, 1)
	r.durations.AddFloat(operation, float64(duration)/float64(time.Millisecond))
}

// Notification implements NotificationRecorder.
func (r *ExpvarRecorder) Notification(channel, result string) {
	r.notifications.Add(channel+"/"+result, 1)
}

// SpanRecord is one finished operation as written by JSONTracer.
type SpanRecord struct {
	Operation  string    `json:"operation"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTracer writes one JSON line per finished span and keeps the records.
type JSONTracer struct {
	mu    sync.Mutex
	out   io.Writer
	spans []SpanRecord
}

// NewJSONTracer returns a tracer writing to w. A nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTracer {
	return &JSONTracer{out: w}
}

// Spans returns the finished spans in completion order.
func (t *JSONTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.spans...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	return ctx, &jsonSpan{tracer: t, rec: SpanRecord{Operation: operation, StartedAt: time.Now().UTC()}}
}

func (t *JSONTracer) finish(rec SpanRecord) {
	line, err := json.Marshal(rec)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, rec)
	if t.out != nil && err == nil {
		_, _ = t.out.Write(append(line, '\n'))
	}
}

type jsonSpan struct {
	tracer *JSONTracer
	rec    SpanRecord
	once   sync.Once
}

func (s *jsonSpan) End(err error) {
	s.once.Do(func() {
		s.rec.Outcome = domain.ErrorCode(err)
		if err != nil {
			s.rec.Error = err.Error()
		}
		s.rec.DurationMS = float64(time.Since(s.rec.StartedAt)) / float64(time.Millisecond)
		s.tracer.finish(s.rec)
	})
}
