package solverapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"turnstile-solver/solver"
)

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestTurnstileAndResult(t *testing.T) {
	stub := &stubSolver{token: "0.abc"}
	svc := startService(t, stub, nil, Options{Workers: 1, Headless: true})
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/turnstile?url=https://x.test&sitekey=0x4AAA&action=login&browser_type=chrome")
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	body := decodeBody(t, resp)
	id, _ := body["task_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "pending", body["status"])

	waitFinished(t, svc, id)

	for _, path := range []string{"/result/" + id, "/result?id=" + id} {
		resp, err = http.Get(srv.URL + path)
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body = decodeBody(t, resp)
		assert.Equal(t, "completed", body["status"])
		result, _ := body["result"].(map[string]interface{})
		assert.Equal(t, "0.abc", result["value"])
		assert.Equal(t, 2.5, result["elapsed_time"])
	}

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.reqs, 1)
	assert.Equal(t, solver.Request{
		URL:      "https://x.test",
		SiteKey:  "0x4AAA",
		Action:   "login",
		Headless: true,
		Browser:  solver.VariantChrome,
	}, stub.reqs[0])
}

func TestSolveEndpoint(t *testing.T) {
	stub := &stubSolver{token: "tok"}
	svc := startService(t, stub, nil, Options{Workers: 1, Headless: true})
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/solve", "application/json",
		strings.NewReader(`{"url":"https://x.test/","sitekey":"k","cdata":"c","headless":false,"useragent":"UA"}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	id, _ := decodeBody(t, resp)["task_id"].(string)

	done := waitFinished(t, svc, id)
	assert.False(t, done.Request.Headless)
	assert.Equal(t, "UA", done.Request.UserAgent)
	assert.Equal(t, "c", done.Request.CData)
}

func TestHandlerErrors(t *testing.T) {
	svc := NewService(NewMemoryStore(), &stubSolver{}, nil, Options{QueueSize: 1}, zerolog.Nop())
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"missing sitekey", http.MethodGet, "/turnstile?url=https://x.test", "", http.StatusBadRequest},
		{"missing url", http.MethodPost, "/solve", `{"sitekey":"k"}`, http.StatusBadRequest},
		{"bad json", http.MethodPost, "/solve", `{`, http.StatusBadRequest},
		{"bad browser", http.MethodGet, "/turnstile?url=u&sitekey=k&browser_type=webkit", "", http.StatusBadRequest},
		{"bad headless", http.MethodGet, "/turnstile?url=u&sitekey=k&headless=maybe", "", http.StatusBadRequest},
		{"unknown task", http.MethodGet, "/result/nope", "", http.StatusNotFound},
		{"missing id", http.MethodGet, "/result", "", http.StatusBadRequest},
		{"queued", http.MethodGet, "/turnstile?url=u&sitekey=k", "", http.StatusAccepted},
		{"queue full", http.MethodGet, "/turnstile?url=u&sitekey=k", "", http.StatusServiceUnavailable},
		{"wrong method", http.MethodDelete, "/solve", "", http.StatusMethodNotAllowed},
		{"preflight", http.MethodOptions, "/solve", "", http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequestWithContext(context.Background(), tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHealth(t *testing.T) {
	svc := NewService(NewMemoryStore(), &stubSolver{}, nil, Options{}, zerolog.Nop())
	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)
}

func TestMetrics(t *testing.T) {
	stub := &stubSolver{token: "0.abc"}
	svc := startService(t, stub, nil, Options{Workers: 1})

	task, err := svc.Submit(context.Background(), solver.Request{URL: "https://x.test", SiteKey: "k"})
	require.NoError(t, err)
	waitFinished(t, svc, task.ID)

	rec := httptest.NewRecorder()
	svc.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "turnstile_tasks_submitted_total 1")
	assert.Contains(t, body, `turnstile_tasks_finished_total{outcome="solved"} 1`)
	assert.Contains(t, body, "turnstile_solve_elapsed_seconds_count 1")
	assert.Contains(t, body, "turnstile_queue_depth 0")
}

func TestQueueFullReturnsTaskID(t *testing.T) {
	svc := NewService(NewMemoryStore(), &stubSolver{}, nil, Options{QueueSize: 1}, zerolog.Nop())
	srv := httptest.NewServer(svc.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/turnstile?url=https://x.test&sitekey=k")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/turnstile?url=https://x.test&sitekey=k")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body := decodeBody(t, resp)
	id, _ := body["task_id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "failed", body["status"])

	resp, err = http.Get(srv.URL + "/result/" + id)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	result := decodeBody(t, resp)
	assert.Equal(t, ErrQueueFull.Error(), result["error"])
}
