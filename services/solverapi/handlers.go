package solverapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"turnstile-solver/solver"
)

// Router returns the HTTP API:
//
//	GET  /health
//	GET  /turnstile?url=&sitekey=[&action=&cdata=&headless=&useragent=&browser_type=]
//	POST /solve
//	GET  /result/{id}, GET /result?id=
//	GET  /metrics
func (s *Service) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(corsMiddleware)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/turnstile", s.handleTurnstile).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/solve", s.handleSolve).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/result", s.handleResult).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/result/{id}", s.handleResult).Methods(http.MethodGet, http.MethodOptions)
	r.Handle("/metrics", s.m.handler()).Methods(http.MethodGet)
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// solveBody is the POST /solve payload. Headless is a pointer so an absent
// field falls back to the service default.
type solveBody struct {
	URL       string `json:"url"`
	SiteKey   string `json:"sitekey"`
	Action    string `json:"action"`
	CData     string `json:"cdata"`
	Headless  *bool  `json:"headless"`
	UserAgent string `json:"useragent"`
	Browser   string `json:"browser_type"`
}

func (s *Service) handleSolve(w http.ResponseWriter, r *http.Request) {
	var body solveBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err))
		return
	}

	headless := s.opts.Headless
	if body.Headless != nil {
		headless = *body.Headless
	}
	s.submit(w, r, body.URL, body.SiteKey, body.Action, body.CData, headless, body.UserAgent, body.Browser)
}

func (s *Service) handleTurnstile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	headless := s.opts.Headless
	if v := q.Get("headless"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid headless parameter")
			return
		}
		headless = b
	}
	s.submit(w, r, q.Get("url"), q.Get("sitekey"), q.Get("action"), q.Get("cdata"), headless, q.Get("useragent"), q.Get("browser_type"))
}

func (s *Service) submit(w http.ResponseWriter, r *http.Request, url, sitekey, action, cdata string, headless bool, useragent, browserType string) {
	variant, err := solver.ParseVariant(browserType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req := solver.Request{
		URL:       url,
		SiteKey:   sitekey,
		Action:    action,
		CData:     cdata,
		Headless:  headless,
		UserAgent: useragent,
		Browser:   variant,
	}

	task, err := s.Submit(r.Context(), req)
	switch {
	case errors.Is(err, solver.ErrMissingURL), errors.Is(err, solver.ErrMissingSiteKey):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, ErrQueueFull) && task != nil:
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error":   err.Error(),
			"task_id": task.ID,
			"status":  task.Status,
		})
		return
	case errors.Is(err, ErrQueueFull), errors.Is(err, ErrStopped):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id":    task.ID,
		"status":     task.Status,
		"created_at": task.CreatedAt,
	})
}

func (s *Service) handleResult(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		id = r.URL.Query().Get("id")
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing id parameter")
		return
	}

	task, err := s.Task(r.Context(), id)
	if errors.Is(err, ErrTaskNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	} else if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "turnstile-solver",
		"time":    time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
