package trace

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

func TestGenerateTraceID(t *testing.T) {
	id := generateTraceID()
	if len(id) != 32 {
		t.Errorf("trace ID should be 32 chars, got %d", len(id))
	}
}

func TestGenerateSpanID(t *testing.T) {
	id := generateSpanID()
	if len(id) != 16 {
		t.Errorf("span ID should be 16 chars, got %d", len(id))
	}
}

func TestIDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := generateTraceID()
		if seen[id] {
			t.Error("generated duplicate trace ID")
		}
		seen[id] = true
	}
}

func TestNewContext(t *testing.T) {
	ctx := New()
	if len(ctx.TraceID) != 32 {
		t.Errorf("trace ID should be 32 chars, got %d", len(ctx.TraceID))
	}
	if len(ctx.SpanID) != 16 {
		t.Errorf("span ID should be 16 chars, got %d", len(ctx.SpanID))
	}
	if ctx.ParentSpanID != "" {
		t.Error("new context should not have parent span ID")
	}
}

func TestNewChild(t *testing.T) {
	parent := New()
	child := NewChild(parent)

	if child.TraceID != parent.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.SpanID == parent.SpanID {
		t.Error("child should have new span ID")
	}
	if child.ParentSpanID != parent.SpanID {
		t.Error("child's parent should be parent's span ID")
	}
}

func TestContextPropagation(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)

	extracted, ok := FromContext(ctx)
	if !ok {
		t.Fatal("should extract trace context")
	}
	if extracted.TraceID != tc.TraceID {
		t.Error("extracted trace ID mismatch")
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("should not find trace context in empty context")
	}
}

func TestEnsureContext(t *testing.T) {
	// Empty context should create new trace
	ctx, tc := EnsureContext(context.Background())
	if len(tc.TraceID) != 32 {
		t.Error("should create trace ID")
	}

	// Context with trace should return existing
	ctx2, tc2 := EnsureContext(ctx)
	if tc2.TraceID != tc.TraceID {
		t.Error("should return existing trace")
	}
	_ = ctx2
}

func TestToMap(t *testing.T) {
	tc := Context{
		TraceID:      "trace123",
		SpanID:       "span456",
		ParentSpanID: "parent789",
	}
	m := tc.ToMap()

	if m[TraceIDKey] != "trace123" {
		t.Error("trace ID mismatch")
	}
	if m[SpanIDKey] != "span456" {
		t.Error("span ID mismatch")
	}
	if m[ParentSpanIDKey] != "parent789" {
		t.Error("parent span ID mismatch")
	}
}

func TestFromMap(t *testing.T) {
	m := map[string]string{
		TraceIDKey: "trace123",
		SpanIDKey:  "span456",
	}
	tc := FromMap(m)

	if tc.TraceID != "trace123" {
		t.Error("trace ID mismatch")
	}
	if tc.ParentSpanID != "span456" {
		t.Error("parent span should be caller's span")
	}
	if len(tc.SpanID) != 16 {
		t.Error("should generate new span ID")
	}
}

func TestFromMapGeneratesTrace(t *testing.T) {
	tc := FromMap(map[string]string{})
	if len(tc.TraceID) != 32 {
		t.Error("should generate trace ID if missing")
	}
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()
	ctx, span := StartSpan(ctx, "test_span")

	if span.Name != "test_span" {
		t.Error("span name mismatch")
	}
	if span.StartTime.IsZero() {
		t.Error("span should have start time")
	}

	span.SetAttr("key", "value")
	span.End()

	if span.EndTime.IsZero() {
		t.Error("span should have end time")
	}
	if span.Duration() <= 0 {
		t.Error("span should have positive duration")
	}
	if span.Attrs["key"] != "value" {
		t.Error("span attribute mismatch")
	}
}

func TestSpanNested(t *testing.T) {
	ctx := context.Background()
	ctx, parent := StartSpan(ctx, "parent")
	ctx, child := StartSpan(ctx, "child")

	if child.Ctx.TraceID != parent.Ctx.TraceID {
		t.Error("child should inherit trace ID")
	}
	if child.Ctx.ParentSpanID != parent.Ctx.SpanID {
		t.Error("child's parent should be parent's span")
	}
	_ = ctx
}

func TestStartSpanWithoutParent(t *testing.T) {
	_, span := StartSpan(context.Background(), "root")
	if span.Ctx.TraceID == "" || span.Ctx.ParentSpanID != "" {
		t.Errorf("root span ctx = %+v", span.Ctx)
	}
}

func TestSpanFinish(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "finish")
	span.Finish(ctx, "done")
	if span.EndTime.IsZero() {
		t.Error("Finish should end the span")
	}
}

func TestLogger(t *testing.T) {
	tc := New()
	ctx := WithContext(context.Background(), tc)
	log := Logger(ctx)

	// Just verify it doesn't panic and returns a logger
	log.Info("test message")
}

func TestMiddleware(t *testing.T) {
	var got Context
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = FromContext(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", http.NoBody)
	req.Header.Set(TraceIDKey, "trace-abc")
	req.Header.Set(SpanIDKey, "span-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got.TraceID != "trace-abc" || got.ParentSpanID != "span-1" {
		t.Errorf("context = %+v", got)
	}
	if v := rec.Header().Get(TraceIDKey); v != "trace-abc" {
		t.Errorf("response trace header = %q", v)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/", http.NoBody))
	if len(got.TraceID) != 32 || rec.Header().Get(TraceIDKey) != got.TraceID {
		t.Errorf("missing headers should start a trace, got %+v", got)
	}
}

func TestExtractFromJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		found bool
	}{
		{"present", `{"type":"status","trace_id":"abc"}`, true},
		{"absent", `{"type":"status"}`, false},
		{"malformed", `{`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tc, ok := ExtractFromJSON([]byte(tt.input))
			if ok != tt.found {
				t.Fatalf("found = %v, want %v", ok, tt.found)
			}
			if tt.found && tc.TraceID != "abc" {
				t.Errorf("TraceID = %q, want abc", tc.TraceID)
			}
			if tc.TraceID == "" || tc.SpanID == "" {
				t.Error("ids should always be set")
			}
		})
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(TraceIDKey, "trace-xyz", SpanIDKey, "caller"))

	var got Context
	_, err := UnaryServerInterceptor()(ctx, nil, &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"},
		func(ctx context.Context, _ any) (any, error) {
			got, _ = FromContext(ctx)
			return nil, nil
		})
	if err != nil {
		t.Fatal(err)
	}
	if got.TraceID != "trace-xyz" {
		t.Errorf("TraceID = %q, want trace-xyz", got.TraceID)
	}
	if got.ParentSpanID == "" {
		t.Error("handler span should have a parent")
	}
}

func TestInjectMetadata(t *testing.T) {
	tc := New()
	ctx := injectMetadata(WithContext(context.Background(), tc))
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("no outgoing metadata")
	}
	if v := md.Get(TraceIDKey); len(v) != 1 || v[0] != tc.TraceID {
		t.Errorf("trace id metadata = %v", v)
	}
}
