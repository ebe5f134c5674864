package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mitchellh/mapstructure"

	"github.com/connexhq/connex/pkg/agi"
	"github.com/connexhq/connex/pkg/event"
	"github.com/connexhq/connex/pkg/skill"
)

// ExecuteRequest is the body of /v1/run and /v1/execute. Decoding is
// lenient: clients sending "true" for speak or numeric strings in the
// context still parse.
type ExecuteRequest struct {
	Goal    string                 `json:"goal"`
	Context map[string]interface{} `json:"context,omitempty"`
	Speak   bool                   `json:"speak,omitempty"`
}

func decodeRequest(r *http.Request, out interface{}) error {
	var raw map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
		TagName:          "json",
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRun executes one goal synchronously and returns the result.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}

	start := time.Now()
	res, err := s.runtime.Execute(r.Context(), req.Goal, req.Context, req.Speak)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.observeGoal(res.Metadata, res.Success, time.Since(start))
	writeJSON(w, http.StatusOK, res)
}

// handleExecute streams one goal's progress as server-sent events:
// "start", then one "update" per runtime event, then "done" with the
// final result. Transport-level failures emit "error".
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req ExecuteRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Goal == "" {
		writeError(w, http.StatusBadRequest, "goal is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming is not supported by the transport")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sse := &sseWriter{w: w, flusher: flusher}
	sse.Write("start", map[string]interface{}{"goal": req.Goal})

	stream := event.NewStream(128)
	done := make(chan struct{})
	var result *agi.ExecuteResult
	var elapsed time.Duration
	go func() {
		defer close(done)
		defer stream.Close()
		start := time.Now()
		result = s.runtime.ExecuteStreaming(r.Context(), req.Goal, req.Context, req.Speak, stream)
		elapsed = time.Since(start)
	}()

	for ev := range stream.Events() {
		if err := sse.Write("update", ev); err != nil {
			// client went away; keep draining so the runtime never
			// blocks on a full buffer, then let it finish
			for range stream.Events() {
			}
			<-done
			return
		}
	}
	<-done

	if result == nil {
		sse.Write("error", map[string]string{"error": "execution produced no result"})
		return
	}
	s.observeGoal(result.Metadata, result.Success, elapsed)
	sse.Write("done", result)
}

func (s *Server) handleListSkills(w http.ResponseWriter, r *http.Request) {
	includeDisabled := r.URL.Query().Get("all") == "true"
	writeJSON(w, http.StatusOK, s.runtime.Skills().ListInfos(includeDisabled))
}

func (s *Server) handleSkillConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var patch map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	if err := s.runtime.Skills().UpdateConfig(r.Context(), name, patch); err != nil {
		var notFound *skill.NotFoundError
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) observeGoal(metadata map[string]interface{}, success bool, elapsed time.Duration) {
	intent := "UNKNOWN"
	if v, ok := metadata["intent"].(string); ok && v != "" {
		intent = v
	}
	s.obs.Metrics().ObserveGoal(intent, success, elapsed)
}
