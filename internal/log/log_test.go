package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newBufferLogger(buf *bytes.Buffer) *Logger {
	return New(Config{Level: slog.LevelDebug, Format: "text", Component: ComponentHTTP, Output: buf})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLogger_ComponentIsNotDuplicated(t *testing.T) {
	var buf bytes.Buffer
	l := newBufferLogger(&buf).With(FieldPeriod, "2024-2026").WithComponent(ComponentScale)

	l.Info("scale loaded")

	out := buf.String()
	if strings.Count(out, "component=") != 1 {
		t.Errorf("expected one component attribute, got %q", out)
	}
	if !strings.Contains(out, "component=scale") {
		t.Errorf("expected scale component, got %q", out)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(Config{Level: slog.LevelInfo, Format: "json", Output: &buf})

	l.Info("hello")

	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"component":"app"`) {
		t.Errorf("unexpected json output %q", buf.String())
	}
}

func TestMiddleware_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)
	extract := func(context.Context) string { return "req_1" }

	h := Middleware(logger, extract)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside handler")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if !strings.Contains(buf.String(), "request_id=req_1") {
		t.Errorf("expected request id in %q", buf.String())
	}
}

func TestFromContext_Default(t *testing.T) {
	if FromContext(context.Background()).Component() != "unknown" {
		t.Error("expected fallback logger")
	}
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	ctx := WithLogger(context.Background(), newBufferLogger(&buf))

	LogError(ctx, "save failed", errors.New("disk full"), ComponentStorage, OpSave, NewFields().WithPeriod("2024-2026"))

	out := buf.String()
	for _, want := range []string{"level=ERROR", "error=\"disk full\"", "operation=save", "component=storage", "period=2024-2026"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
}
