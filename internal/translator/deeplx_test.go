package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/vnmchuo/translate-gateway/internal/apierr"
)

func newBackend(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int32) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func TestTranslate_Success(t *testing.T) {
	var got map[string]interface{}
	server, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("Expected POST, got %s", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %s", r.Header.Get("Content-Type"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"code":200,"data":"你好，世界"}`))
	})

	c := New(server.URL, time.Second)
	out, err := c.Translate(context.Background(), "hello world", "auto", "ZH")
	if err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if out != "你好，世界" {
		t.Errorf("Expected '你好，世界', got %q", out)
	}
	if *calls != 1 {
		t.Errorf("Expected 1 backend call, got %d", *calls)
	}
	if got["text"] != "hello world" || got["target_lang"] != "ZH" {
		t.Errorf("Unexpected payload %v", got)
	}
	if got["source_lang"] != "auto" {
		t.Errorf("Expected source_lang 'auto' to be sent, got %v", got["source_lang"])
	}
}

func TestTranslate_EmptySourceOmitted(t *testing.T) {
	var raw string
	server, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		raw = string(b)
		w.Write([]byte(`{"code":200,"data":"x"}`))
	})

	if _, err := New(server.URL, time.Second).Translate(context.Background(), "hi", "", "DE"); err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	if strings.Contains(raw, "source_lang") {
		t.Errorf("Expected source_lang omitted, got %s", raw)
	}
}

func TestTranslate_IdentityShortCircuit(t *testing.T) {
	server, calls := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200,"data":"nope"}`))
	})
	c := New(server.URL, time.Second)

	cases := []struct{ text, source, target string }{
		{"hello", "EN", "EN"},
		{"   ", "EN", "ZH"},
		{"", "auto", "ZH"},
		{"auto", "auto", "auto"},
	}
	for _, tc := range cases {
		out, err := c.Translate(context.Background(), tc.text, tc.source, tc.target)
		if err != nil {
			t.Errorf("%+v: unexpected error %v", tc, err)
		}
		if out != tc.text {
			t.Errorf("%+v: expected input unchanged, got %q", tc, out)
		}
	}
	if *calls != 0 {
		t.Errorf("Expected no backend calls, got %d", *calls)
	}
}

func TestTranslate_BackendStatus(t *testing.T) {
	server, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("bad gateway"))
	})

	_, err := New(server.URL, time.Second).Translate(context.Background(), "hi", "auto", "ZH")
	status, msg := apierr.Resolve(err)
	if status != http.StatusBadGateway {
		t.Errorf("Expected 502, got %d", status)
	}
	if msg != "Translation service returned status 502" {
		t.Errorf("Unexpected message %q", msg)
	}
	if apierr.KindOf(err) != apierr.KindUpstream {
		t.Errorf("Expected upstream kind, got %s", apierr.KindOf(err))
	}
}

func TestTranslate_EnvelopeCode(t *testing.T) {
	cases := map[string]string{
		`{"code":429,"message":"quota exceeded"}`: "Translation API error: quota exceeded",
		`{"data":"x"}`: "Translation API error: Unknown error",
	}
	for body, want := range cases {
		server, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(body))
		})
		_, err := New(server.URL, time.Second).Translate(context.Background(), "hi", "auto", "ZH")
		status, msg := apierr.Resolve(err)
		if status != http.StatusBadRequest || msg != want {
			t.Errorf("%s: expected 400 %q, got %d %q", body, want, status, msg)
		}
	}
}

func TestTranslate_MissingDataIsEmpty(t *testing.T) {
	server, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":200}`))
	})
	out, err := New(server.URL, time.Second).Translate(context.Background(), "hi", "auto", "ZH")
	if err != nil || out != "" {
		t.Errorf("Expected empty translation, got %q %v", out, err)
	}
}

func TestTranslate_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := New(url, time.Second).Translate(context.Background(), "hi", "auto", "ZH")
	status, msg := apierr.Resolve(err)
	if status != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", status)
	}
	if !strings.HasPrefix(msg, "Error connecting to translation service: ") {
		t.Errorf("Unexpected message %q", msg)
	}
}

func TestTranslate_Timeout(t *testing.T) {
	release := make(chan struct{})
	server, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	_, err := New(server.URL, 50*time.Millisecond).Translate(context.Background(), "hi", "auto", "ZH")
	if apierr.KindOf(err) != apierr.KindInternal {
		t.Errorf("Expected internal error on timeout, got %v", err)
	}
}

func TestTranslate_UndecodableBody(t *testing.T) {
	server, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	})
	_, err := New(server.URL, time.Second).Translate(context.Background(), "hi", "auto", "ZH")
	if status, _ := apierr.Resolve(err); status != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", status)
	}
}

func TestTranslate_InjectsTraceContext(t *testing.T) {
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })

	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { tp.Shutdown(context.Background()) })
	ctx, span := tp.Tracer("test").Start(context.Background(), "translate")
	defer span.End()

	var traceparent string
	server, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		traceparent = r.Header.Get("traceparent")
		w.Write([]byte(`{"code":200,"data":"hola"}`))
	})

	if _, err := New(server.URL, time.Second).Translate(ctx, "hello", "EN", "ES"); err != nil {
		t.Fatalf("Translate failed: %v", err)
	}
	traceID := span.SpanContext().TraceID().String()
	if !strings.Contains(traceparent, traceID) {
		t.Errorf("Expected traceparent carrying trace %s, got %q", traceID, traceparent)
	}
}

func TestTranslate_ErrorBodyLogIsCapped(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	server, _ := newBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(strings.Repeat("x", 64*1024)))
	})

	_, err := New(server.URL, time.Second).Translate(context.Background(), "hi", "auto", "ZH")
	if status, _ := apierr.Resolve(err); status != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", status)
	}
	if n := strings.Count(buf.String(), "x"); n > maxErrorBody {
		t.Errorf("Expected at most %d body bytes logged, got %d", maxErrorBody, n)
	}
}
