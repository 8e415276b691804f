package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNormalizePathCollapsesSessionIDs(t *testing.T) {
	cases := map[string]string{
		"/v1/sessions/abc/transcript": "/v1/sessions/{session_id}/transcript",
		"/v1/sessions/xyz":            "/v1/sessions/{session_id}/transcript",
		"/v1/answer":                  "/v1/answer",
		"/healthz":                    "/healthz",
	}
	for in, want := range cases {
		if got := normalizePath(in); got != want {
			t.Fatalf("normalizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestHTTPServerMetricsExposition(t *testing.T) {
	m := NewHTTPServerMetrics("api")

	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/transcript", nil))

	m.RecordAnswer("api", AnswerObservation{
		Mode:      "stream",
		Model:     "gemini-2.5-flash",
		State:     "done",
		Sources:   2,
		NoContext: true,
		Fragments: 3,
		Duration:  150 * time.Millisecond,
	})
	m.RecordRejected("api", "rate_limited")
	m.SetBreakerOpen("api", "generation.stream", true)
	m.RecordTranscriptFailure("api")

	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(res.Body)
	text := string(body)

	for _, want := range []string{
		`nhsrag_http_requests_total{method="GET",path="/v1/sessions/{session_id}/transcript",service="api",status="418"} 1`,
		`nhsrag_http_rejected_total{reason="rate_limited",service="api"} 1`,
		`operation="generation.stream"`,
		`model="gemini-2.5-flash"`,
		"nhsrag_transcripts_record_failures_total",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestWorkerMetricsTracksOutcomes(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartTranscript()
	m.FinishTranscript("worker", 10*time.Millisecond, nil)
	m.StartTranscript()
	m.FinishTranscript("worker", 10*time.Millisecond, io.EOF)
	m.ObserveDeliveryLag("worker", time.Second)

	res := httptest.NewRecorder()
	m.Handler().ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	text := res.Body.String()
	if !strings.Contains(text, `status="success"`) || !strings.Contains(text, `status="error"`) {
		t.Fatalf("expected success and error outcomes in worker metrics:\n%s", text)
	}
}
