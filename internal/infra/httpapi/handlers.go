package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"lightctl/internal/domain"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	status := s.lights.Status()

	endpoints := map[string]string{
		"lights":  "GET /lights - List all lights",
		"control": "POST /control - Control lights",
		"health":  "GET /health - Health check",
		"config":  "GET /config/check - Configuration check",
	}
	if s.events != nil {
		endpoints["events"] = "GET /events - Control event stream (websocket)"
	}
	if s.metrics != nil {
		endpoints["metrics"] = "GET /metrics - Prometheus metrics"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":          "Lights Control API",
		"version":          Version,
		"lights_available": status.LightsAvailable,
		"endpoints":        endpoints,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.lights.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "healthy",
		"vendor_connected": status.Connected,
		"lights_available": status.LightsAvailable,
		"timestamp":        domain.Timestamp(time.Now()),
	})
}

func (s *Server) handleConfigCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"backend":         s.cfg.Backend,
		"credentials_set": s.cfg.CredentialsSet,
		"auth_token_set":  s.cfg.AuthToken != "",
	})
}

func (s *Server) handleLights(w http.ResponseWriter, r *http.Request) {
	withState := false
	if v := r.URL.Query().Get("state"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			WriteError(w, http.StatusBadRequest, ErrBadRequest, "state must be a boolean")
			return
		}
		withState = parsed
	}

	lights, err := s.lights.Lights(r.Context(), withState)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"lights": lights,
		"count":  len(lights),
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req domain.ControlRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrBadRequest, "Invalid JSON body")
		return
	}

	resp, err := s.lights.Control(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case domain.IsValidation(err):
		WriteError(w, http.StatusBadRequest, ErrValidation, validationMessage(err))
	case errors.Is(err, domain.ErrAuthentication):
		s.logger.Error("vendor session unavailable", "error", err, "request_id", requestIDFrom(r.Context()))
		WriteError(w, http.StatusInternalServerError, ErrVendorAuth, "Failed to authenticate with the lighting vendor")
	default:
		s.logger.Error("request failed", "error", err, "request_id", requestIDFrom(r.Context()))
		WriteError(w, http.StatusInternalServerError, ErrInternalError, "An unexpected error occurred")
	}
}

func validationMessage(err error) string {
	for _, sentinel := range []error{
		domain.ErrInvalidBrightness,
		domain.ErrInvalidColorFormat,
		domain.ErrInvalidAction,
		domain.ErrNoControlFields,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return err.Error()
}
