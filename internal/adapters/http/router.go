package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/nhs-clinical-assistant/internal/config"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/domain"
	"github.com/kirillkom/nhs-clinical-assistant/internal/core/ports"
	"github.com/kirillkom/nhs-clinical-assistant/internal/observability/metrics"
)

const (
	serviceName          = "api"
	maxRequestBodyBytes  = 1 << 20
	transcriptRecordWait = 5 * time.Second
)

// Dependencies are the collaborators the HTTP API serves. Transcripts, Sink
// and Metrics are optional.
type Dependencies struct {
	Answers     ports.AnswerService
	Catalog     ports.ModelCatalog
	Transcripts ports.TranscriptReader
	Sink        ports.TranscriptSink
	Metrics     *metrics.HTTPServerMetrics
	Logger      *slog.Logger
}

type Router struct {
	answers     ports.AnswerService
	catalog     ports.ModelCatalog
	transcripts ports.TranscriptReader
	sink        ports.TranscriptSink
	metrics     *metrics.HTTPServerMetrics
	logger      *slog.Logger

	apiKey         string
	rateLimitRPS   float64
	rateLimitBurst int
	maxInFlight    int
	queueWait      time.Duration
	messages       domain.UserMessages
}

func NewRouter(cfg config.Config, deps Dependencies) *Router {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		answers:        deps.Answers,
		catalog:        deps.Catalog,
		transcripts:    deps.Transcripts,
		sink:           deps.Sink,
		metrics:        deps.Metrics,
		logger:         logger,
		apiKey:         cfg.APIKey,
		rateLimitRPS:   cfg.APIRateLimitRPS,
		rateLimitBurst: cfg.APIRateLimitBurst,
		maxInFlight:    cfg.APIMaxInFlight,
		queueWait:      cfg.APIQueueWait,
		messages:       cfg.Messages,
	}
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/models", rt.listModels)
	api.HandleFunc("POST /v1/answer", rt.answer)
	api.HandleFunc("POST /v1/answer/stream", rt.streamAnswer)
	if rt.transcripts != nil {
		api.HandleFunc("GET /v1/sessions/{id}/transcript", rt.getTranscript)
		api.HandleFunc("DELETE /v1/sessions/{id}/transcript", rt.deleteTranscript)
	}

	var v1 http.Handler = api
	v1 = backpressureMiddleware(v1, rt.maxInFlight, rt.queueWait, rt.recordRejected)
	v1 = rateLimitMiddleware(v1, rt.rateLimitRPS, rt.rateLimitBurst, rt.recordRejected)
	v1 = authMiddleware(v1, rt.apiKey, rt.recordRejected)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}
	mux.Handle("/v1/", v1)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

type answerRequest struct {
	Query       string `json:"query"`
	Model       string `json:"model"`
	ResultCount int    `json:"result_count"`
	SessionID   string `json:"session_id"`
}

type answerResponse struct {
	*domain.Answer
	SessionID string `json:"session_id"`
}

type apiError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error     *apiError `json:"error"`
	SessionID string    `json:"session_id,omitempty"`
}

type sourcesEvent struct {
	Sources   []domain.Source `json:"sources"`
	Model     string          `json:"model"`
	NoContext bool            `json:"no_context"`
	SessionID string          `json:"session_id"`
}

type deltaEvent struct {
	Text string `json:"text"`
}

type doneEvent struct {
	State     domain.AnswerState `json:"state"`
	Model     string             `json:"model"`
	SessionID string             `json:"session_id"`
}

type modelObject struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Default bool   `json:"default"`
}

type modelList struct {
	Object string        `json:"object"`
	Data   []modelObject `json:"data"`
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) listModels(w http.ResponseWriter, _ *http.Request) {
	defaultModel := rt.catalog.DefaultModel()
	models := rt.catalog.Models()
	out := modelList{Object: "list", Data: make([]modelObject, 0, len(models))}
	for _, id := range models {
		out.Data = append(out.Data, modelObject{ID: id, Object: "model", Default: id == defaultModel})
	}
	writeJSON(w, http.StatusOK, out)
}

func (rt *Router) answer(w http.ResponseWriter, r *http.Request) {
	req, ok := rt.decodeAnswerRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	answer, err := rt.answers.Answer(r.Context(), domain.AnswerRequest{
		Query:       req.Query,
		Model:       req.Model,
		ResultCount: req.ResultCount,
	})
	if answer != nil {
		rt.recordTranscript(r.Context(), req, answer.Text, answer.Sources, answer.Model, answer.State, err)
		rt.observe("blocking", answer.Model, answer.State, err, len(answer.Sources), answer.NoContext, 0, start)
	}
	if err != nil {
		rt.writeFailure(w, err, req.SessionID)
		return
	}

	writeJSON(w, http.StatusOK, answerResponse{Answer: answer, SessionID: req.SessionID})
}

func (rt *Router) streamAnswer(w http.ResponseWriter, r *http.Request) {
	req, ok := rt.decodeAnswerRequest(w, r)
	if !ok {
		return
	}
	if _, ok := w.(http.Flusher); !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: &apiError{Kind: string(domain.KindConfiguration), Message: "streaming is not supported"}})
		return
	}

	start := time.Now()
	stream, err := rt.answers.Stream(r.Context(), domain.AnswerRequest{
		Query:       req.Query,
		Model:       req.Model,
		ResultCount: req.ResultCount,
	})
	if err != nil {
		rt.recordTranscript(r.Context(), req, "", nil, req.Model, domain.StateFailed, err)
		rt.observe("stream", req.Model, domain.StateFailed, err, 0, false, 0, start)
		rt.writeFailure(w, err, req.SessionID)
		return
	}

	sse, err := startSSE(w)
	if err != nil {
		rt.writeFailure(w, err, req.SessionID)
		return
	}
	if err := sse.event("sources", sourcesEvent{
		Sources:   stream.Sources,
		Model:     stream.Model,
		NoContext: stream.NoContext,
		SessionID: req.SessionID,
	}); err != nil {
		rt.logger.Warn("sse_write_failed", "request_id", requestIDFromContext(r.Context()), "error", err)
		return
	}

	var text strings.Builder
	fragments := 0
	var streamErr error
	for fragment, err := range stream.Fragments() {
		if err != nil {
			streamErr = err
			failure := domain.FailureFrom(err, rt.messages)
			_ = sse.event("error", errorResponse{Error: toAPIError(failure), SessionID: req.SessionID})
			break
		}
		if r.Context().Err() != nil {
			break
		}
		if err := sse.event("delta", deltaEvent{Text: fragment}); err != nil {
			break
		}
		text.WriteString(fragment)
		fragments++
	}

	state := stream.State()
	if state == domain.StateDone {
		_ = sse.event("done", doneEvent{State: state, Model: stream.Model, SessionID: req.SessionID})
	}
	rt.recordTranscript(r.Context(), req, text.String(), stream.Sources, stream.Model, state, streamErr)
	rt.observe("stream", stream.Model, state, streamErr, len(stream.Sources), stream.NoContext, fragments, start)
}

func (rt *Router) getTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			rt.writeFailure(w, domain.NewError(domain.ErrValidation, "list transcript", "limit must be a non-negative integer"), sessionID)
			return
		}
		limit = n
	}

	entries, err := rt.transcripts.ListBySession(r.Context(), sessionID, limit)
	if err != nil {
		rt.writeFailure(w, err, sessionID)
		return
	}
	if entries == nil {
		entries = []domain.TranscriptEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"entries":    entries,
	})
}

func (rt *Router) deleteTranscript(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.PathValue("id"))
	if err := rt.transcripts.DeleteSession(r.Context(), sessionID); err != nil {
		rt.writeFailure(w, err, sessionID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) decodeAnswerRequest(w http.ResponseWriter, r *http.Request) (answerRequest, bool) {
	var req answerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		rt.writeFailure(w, domain.WrapError(domain.ErrValidation, "decode answer request", err), "")
		return req, false
	}
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	return req, true
}

func (rt *Router) writeFailure(w http.ResponseWriter, err error, sessionID string) {
	status := mapErrorToHTTPStatus(err)
	body := toAPIError(domain.FailureFrom(err, rt.messages))
	if status == http.StatusNotFound {
		body = &apiError{Kind: "NotFound", Message: "session has no transcript"}
	}
	writeJSON(w, status, errorResponse{Error: body, SessionID: sessionID})
}

// recordTranscript hands the exchange to the transcript sink. The request
// context may already be canceled, so the write gets its own deadline.
func (rt *Router) recordTranscript(
	ctx context.Context,
	req answerRequest,
	text string,
	sources []domain.Source,
	model string,
	state domain.AnswerState,
	err error,
) {
	if rt.sink == nil {
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	entry := domain.TranscriptEntry{
		ID:        uuid.NewString(),
		SessionID: req.SessionID,
		Query:     req.Query,
		Answer:    text,
		Sources:   sources,
		Model:     model,
		State:     state,
		ErrorKind: domain.KindOf(err),
		CreatedAt: time.Now().UTC(),
	}

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transcriptRecordWait)
	defer cancel()
	if recErr := rt.sink.Record(recordCtx, entry); recErr != nil {
		if rt.metrics != nil {
			rt.metrics.RecordTranscriptFailure(serviceName)
		}
		rt.logger.Warn("transcript_record_failed",
			"request_id", requestIDFromContext(ctx),
			"session_id", req.SessionID,
			"error", recErr,
		)
	}
}

func (rt *Router) observe(mode, model string, state domain.AnswerState, err error, sources int, noContext bool, fragments int, start time.Time) {
	if rt.metrics == nil {
		return
	}
	rt.metrics.RecordAnswer(serviceName, metrics.AnswerObservation{
		Mode:      mode,
		Model:     model,
		State:     string(state),
		Kind:      string(domain.KindOf(err)),
		Sources:   sources,
		NoContext: noContext,
		Fragments: fragments,
		Duration:  time.Since(start),
	})
}

func (rt *Router) recordRejected(reason string) {
	if rt.metrics != nil {
		rt.metrics.RecordRejected(serviceName, reason)
	}
}

func toAPIError(failure *domain.Failure) *apiError {
	if failure == nil {
		return nil
	}
	return &apiError{Kind: string(failure.Kind), Message: failure.Message}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
