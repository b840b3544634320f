package proxy

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"
	"unicode/utf8"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/vnmchuo/translate-gateway/internal/apierr"
	"github.com/vnmchuo/translate-gateway/internal/auth"
	"github.com/vnmchuo/translate-gateway/internal/chat"
	"github.com/vnmchuo/translate-gateway/internal/metrics"
	"github.com/vnmchuo/translate-gateway/internal/translator"
	"github.com/vnmchuo/translate-gateway/internal/usage"
	"github.com/vnmchuo/translate-gateway/pkg/ratelimit"
)

const doneSentinel = "data: [DONE]\n\n"

type Handler struct {
	translator   translator.Translator
	usage        usage.Store        // nil disables the usage log
	limiter      *ratelimit.Limiter // nil disables rate limiting
	metrics      *metrics.Collector
	tracer       trace.Tracer
	streamErrors bool
}

func NewHandler(t translator.Translator, store usage.Store, limiter *ratelimit.Limiter, collector *metrics.Collector, tracer trace.Tracer, streamErrors bool) *Handler {
	return &Handler{
		translator:   t,
		usage:        store,
		limiter:      limiter,
		metrics:      collector,
		tracer:       tracer,
		streamErrors: streamErrors,
	}
}

// job is a request that passed every pre-translation stage.
type job struct {
	requestID string
	model     string
	directive chat.Directive
	text      string
	stream    bool
}

func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	j, err := h.prepare(r)
	if err != nil {
		h.fail(w, modeOf(j), err)
		return
	}

	ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
	ctx, span := h.tracer.Start(ctx, "proxy.translate")
	defer span.End()
	span.SetAttributes(
		attribute.String("request_id", j.requestID),
		attribute.String("model", j.model),
		attribute.String("source_lang", j.directive.Source),
		attribute.String("target_lang", j.directive.Target),
		attribute.Bool("stream", j.stream),
	)

	if j.stream {
		h.stream(ctx, w, j, span)
		return
	}
	h.complete(ctx, w, j, span)
}

// HandlePreflight answers OPTIONS; the CORS middleware has already set the
// headers.
func (h *Handler) HandlePreflight(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) prepare(r *http.Request) (*job, error) {
	ctx := r.Context()

	if h.limiter != nil {
		callerID := auth.GetCallerID(ctx)
		if callerID == "" {
			callerID = "anonymous"
		}
		allowed, err := h.limiter.Allow(ctx, callerID)
		if err != nil {
			log.Printf("proxy: rate limiter error: %v", err)
		}
		if err != nil || !allowed {
			return nil, apierr.RateLimited("rate limit exceeded")
		}
	}

	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, apierr.BadRequest("invalid request body")
	}
	log.Printf("Received request for model: %s", req.Model)

	j := &job{
		requestID: chimiddleware.GetReqID(ctx),
		model:     req.Model,
		stream:    req.Stream,
	}
	if j.requestID == "" {
		j.requestID = uuid.New().String()
	}

	directive, err := chat.ParseModel(req.Model)
	if err != nil {
		log.Printf("proxy: %v", err)
		return j, err
	}
	j.directive = directive

	text, err := chat.ExtractText(req.Messages)
	if err != nil {
		log.Printf("proxy: %v", err)
		return j, err
	}
	j.text = text

	log.Printf("Translating text: '%s...'", preview(text, 100))
	return j, nil
}

func (h *Handler) fail(w http.ResponseWriter, mode string, err error) {
	status, msg := apierr.Resolve(err)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "60")
	}
	apierr.WriteJSON(w, status, msg)
	h.metrics.RecordRequest(mode, status)
}

func (h *Handler) complete(ctx context.Context, w http.ResponseWriter, j *job, span trace.Span) {
	translated, err := h.translate(ctx, j, span)
	if err != nil {
		h.fail(w, "json", err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(chat.Completion{
		ID:      "chatcmpl-" + uuid.New().String(),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   j.model,
		Choices: []chat.CompletionChoice{
			{
				Index:        0,
				Message:      chat.AssistantMessage{Role: "assistant", Content: translated},
				FinishReason: "stop",
			},
		},
		Usage: chat.Usage{},
	})
	h.metrics.RecordRequest("json", http.StatusOK)
}

// stream commits a 200 event-stream before translating. A failed translation
// only ends the stream with the sentinel, or with an error event first when
// streamErrors is set.
func (h *Handler) stream(ctx context.Context, w http.ResponseWriter, j *job, span trace.Span) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.fail(w, "stream", apierr.Internal("streaming unsupported", nil))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	h.metrics.RecordRequest("stream", http.StatusOK)

	defer func() {
		fmt.Fprint(w, doneSentinel)
		flusher.Flush()
	}()

	translated, err := h.translate(ctx, j, span)
	if err != nil {
		log.Printf("Error during streaming translation: %v", err)
		if h.streamErrors {
			_, msg := apierr.Resolve(err)
			payload, _ := json.Marshal(map[string]string{"error": msg})
			fmt.Fprintf(w, "event: error\ndata: %s\n\n", payload)
		}
		return
	}

	id := "chatcmpl-" + uuid.New().String()
	created := time.Now().Unix()
	stop := "stop"

	writeEvent(w, chat.Chunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: j.model,
		Choices: []chat.ChunkChoice{{Index: 0, Delta: chat.Delta{Content: &translated}}},
	})
	flusher.Flush()

	writeEvent(w, chat.Chunk{
		ID: id, Object: "chat.completion.chunk", Created: created, Model: j.model,
		Choices: []chat.ChunkChoice{{Index: 0, Delta: chat.Delta{}, FinishReason: &stop}},
	})
	flusher.Flush()
}

func writeEvent(w http.ResponseWriter, chunk chat.Chunk) {
	data, err := json.Marshal(chunk)
	if err != nil {
		log.Printf("proxy: failed to encode chunk: %v", err)
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

// translate runs the backend call with metrics, tracing and the usage log.
func (h *Handler) translate(ctx context.Context, j *job, span trace.Span) (string, error) {
	src, tgt := j.directive.Source, j.directive.Target

	start := time.Now()
	translated, err := h.translator.Translate(ctx, j.text, src, tgt)
	elapsed := time.Since(start)

	switch {
	case err != nil:
		h.metrics.RecordBackend(metrics.OutcomeError, elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	case translator.Skip(j.text, src, tgt):
		h.metrics.RecordBackend(metrics.OutcomeSkipped, elapsed)
	default:
		h.metrics.RecordBackend(metrics.OutcomeOK, elapsed)
	}

	if h.usage != nil {
		rec := &usage.Record{
			RequestID:  j.requestID,
			Model:      j.model,
			SourceLang: src,
			TargetLang: tgt,
			CharsIn:    utf8.RuneCountInString(j.text),
			CharsOut:   utf8.RuneCountInString(translated),
			LatencyMs:  elapsed.Milliseconds(),
			Stream:     j.stream,
		}
		go func() {
			if err := h.usage.Log(context.Background(), rec); err != nil {
				log.Printf("proxy: usage log failed: %v", err)
			}
		}()
	}

	return translated, nil
}

func (h *Handler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	if h.usage == nil {
		apierr.WriteJSON(w, http.StatusServiceUnavailable, "usage log not configured")
		return
	}

	// Parse query parameters
	now := time.Now()
	from := now.AddDate(0, 0, -30) // Default: last 30 days
	to := now

	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			apierr.WriteJSON(w, http.StatusBadRequest, "invalid 'from' date format (use RFC3339)")
			return
		}
	}
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		var err error
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			apierr.WriteJSON(w, http.StatusBadRequest, "invalid 'to' date format (use RFC3339)")
			return
		}
	}

	summary, err := h.usage.Summarize(r.Context(), from, to)
	if err != nil {
		apierr.WriteJSON(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summary)
}

func modeOf(j *job) string {
	if j != nil && j.stream {
		return "stream"
	}
	return "json"
}

func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
