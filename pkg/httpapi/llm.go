package httpapi

import (
	"net/http"

	"github.com/haivivi/t140cast/pkg/fanout"
)

type streamRequest struct {
	Prompt   string `json:"prompt"`
	Provider string `json:"provider"`
}

type streamMultipleRequest struct {
	DeviceIDs []string `json:"deviceIds"`
	Prompt    string   `json:"prompt"`
	Provider  string   `json:"provider"`
}

type streamResponse struct {
	Message  string          `json:"message,omitempty"`
	Error    string          `json:"error,omitempty"`
	Provider string          `json:"provider,omitempty"`
	Results  []fanout.Result `json:"results,omitempty"`
}

func (s *Server) providers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.ListProviders())
}

func (s *Server) provider(name string) string {
	if name == "" {
		return s.svc.ListProviders().Default
	}
	return name
}

func (s *Server) streamToDevice(w http.ResponseWriter, r *http.Request) {
	var req streamRequest
	if err := decode(w, r, streamSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	id := r.PathValue("deviceId")
	if err := s.svc.StreamToDevice(r.Context(), id, req.Prompt, req.Provider); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, streamResponse{
		Message:  "Started streaming LLM response to device: " + id,
		Provider: s.provider(req.Provider),
	})
}

func (s *Server) streamToDevices(w http.ResponseWriter, r *http.Request) {
	var req streamMultipleRequest
	if err := decode(w, r, streamMultipleSchema, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.svc.StreamToDevices(r.Context(), req.DeviceIDs, req.Prompt, req.Provider)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if !fanout.AnySuccess(results) {
		writeJSON(w, http.StatusBadRequest, streamResponse{
			Error:   "Failed to stream to any device",
			Results: results,
		})
		return
	}
	writeJSON(w, http.StatusOK, streamResponse{
		Message:  "Started streaming LLM response to devices",
		Provider: s.provider(req.Provider),
		Results:  results,
	})
}
