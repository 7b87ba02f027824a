package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/CreativeUnicorns/leafprefs"
)

// valueResponse describes one stored value.
type valueResponse struct {
	Key   string         `json:"key"`
	Kind  leafprefs.Kind `json:"kind"`
	Token string         `json:"token"`
	Value any            `json:"value,omitempty"`
	Hex   string         `json:"hex,omitempty"`
}

func newValueResponse(key string, v leafprefs.Value) valueResponse {
	resp := valueResponse{Key: key, Kind: v.Kind(), Token: v.Encode()}
	switch v.Kind() {
	case leafprefs.KindString:
		resp.Value, _ = v.Text()
	case leafprefs.KindBool:
		if b, ok := v.Bool(); ok {
			resp.Value = b
		}
	case leafprefs.KindNumber:
		resp.Value, _ = v.Number()
	case leafprefs.KindColor:
		if c, ok := v.Color(); ok {
			resp.Value = c
			resp.Hex = c.Hex()
		}
	default:
		resp.Token = v.Raw()
	}
	return resp
}

type containerResponse struct {
	Container string          `json:"container"`
	Values    []valueResponse `json:"values"`
}

// writeRequest is the PUT body: either a raw token, or a kind and a plain JSON value.
// Colors take "#rrggbb[aa]" or {"red":..,"green":..,"blue":..,"alpha":..}.
type writeRequest struct {
	Token *string         `json:"token,omitempty"`
	Kind  string          `json:"kind,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

func (req writeRequest) toValue() (leafprefs.Value, error) {
	if req.Token != nil {
		v := leafprefs.Decode(*req.Token)
		if v.Kind() == leafprefs.KindUnknown {
			return leafprefs.Value{}, fmt.Errorf("%w: token %q", leafprefs.ErrNondecodable, *req.Token)
		}
		return v, nil
	}

	kind, err := leafprefs.ParseKind(req.Kind)
	if err != nil {
		return leafprefs.Value{}, err
	}
	if len(req.Value) == 0 {
		return leafprefs.Value{}, fmt.Errorf("%w: missing value", leafprefs.ErrNondecodable)
	}

	switch kind {
	case leafprefs.KindString:
		var s string
		if err := json.Unmarshal(req.Value, &s); err != nil {
			return leafprefs.Value{}, fmt.Errorf("%w: %v", leafprefs.ErrNondecodable, err)
		}
		return leafprefs.StringValue(s), nil
	case leafprefs.KindBool:
		var b bool
		if err := json.Unmarshal(req.Value, &b); err != nil {
			return leafprefs.Value{}, fmt.Errorf("%w: %v", leafprefs.ErrNondecodable, err)
		}
		return leafprefs.BoolValue(b), nil
	case leafprefs.KindNumber:
		var f float64
		if err := json.Unmarshal(req.Value, &f); err != nil {
			return leafprefs.Value{}, fmt.Errorf("%w: %v", leafprefs.ErrNondecodable, err)
		}
		return leafprefs.NumberValue(f), nil
	case leafprefs.KindColor:
		var hex string
		if err := json.Unmarshal(req.Value, &hex); err == nil {
			c, err := leafprefs.ColorFromHex(hex)
			if err != nil {
				return leafprefs.Value{}, err
			}
			return leafprefs.ColorValue(c), nil
		}
		var c leafprefs.Color
		if err := json.Unmarshal(req.Value, &c); err != nil {
			return leafprefs.Value{}, fmt.Errorf("%w: %v", leafprefs.ErrNondecodable, err)
		}
		return leafprefs.ColorValue(c), nil
	default:
		return leafprefs.Value{}, fmt.Errorf("%w: kind %q cannot be written", leafprefs.ErrNondecodable, req.Kind)
	}
}

// handleListValues returns every value of a container, sorted by key.
func (s *Server) handleListValues(w http.ResponseWriter, r *http.Request) {
	container := chi.URLParam(r, "container")
	if err := leafprefs.ValidateContainer(container); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid container", err)
		return
	}

	values := s.manager.LoadAll(r.Context(), container)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resp := containerResponse{Container: container, Values: make([]valueResponse, 0, len(keys))}
	for _, k := range keys {
		resp.Values = append(resp.Values, newValueResponse(k, values[k]))
	}
	s.respondWithJSON(w, r, http.StatusOK, resp)
}

// handleGetValue returns one value.
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	container := chi.URLParam(r, "container")
	key := chi.URLParam(r, "key")
	if err := s.validateAddress(key, container); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid key or container", err)
		return
	}

	v, found := s.manager.ValueForKey(r.Context(), key, container)
	if !found {
		s.respondWithError(w, r, http.StatusNotFound, "Preference value not found", nil)
		return
	}
	s.respondWithJSON(w, r, http.StatusOK, newValueResponse(key, v))
}

// handleSetValue writes one value and, when configured, notifies leaves.
func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	container := chi.URLParam(r, "container")
	key := chi.URLParam(r, "key")
	if err := s.validateAddress(key, container); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid key or container", err)
		return
	}

	// Limit the size of the request body to 1MB
	r.Body = http.MaxBytesReader(w, r.Body, 1024*1024)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	var req writeRequest
	if err := decoder.Decode(&req); err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid request payload", err)
		return
	}
	v, err := req.toValue()
	if err != nil {
		s.respondWithError(w, r, http.StatusBadRequest, "Invalid preference value", err)
		return
	}

	token := v.Encode()
	if err := s.manager.Storage().SetAll(r.Context(), container, map[string]string{key: token}); err != nil {
		s.respondWithError(w, r, http.StatusInternalServerError, "Failed to save preference value", err)
		return
	}
	s.metrics.ObserveWrite(v.Kind())

	if s.publishOnWrite {
		if b := s.manager.Bus(); b != nil {
			if err := b.Publish(r.Context(), key, token); err != nil {
				s.logger.Warn("Failed to publish preference change", "key", key, "container", container, "error", err)
			}
		}
	}
	s.respondWithJSON(w, r, http.StatusOK, newValueResponse(key, v))
}

func (s *Server) validateAddress(key, container string) error {
	return errors.Join(leafprefs.ValidateKey(key), leafprefs.ValidateContainer(container))
}

// respondWithError is a helper to send JSON error responses.
func (s *Server) respondWithError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	resp := map[string]interface{}{
		"error": map[string]string{
			"message": message,
		},
	}
	if err != nil {
		resp["error"].(map[string]string)["details"] = err.Error()
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("API Error", "status", status, "message", message, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("API Error", "status", status, "message", message, "path", r.URL.Path, "error", err)
	}
	respondWithJSONRaw(w, status, resp)
}

// respondWithJSON is a helper to send JSON responses.
func (s *Server) respondWithJSON(w http.ResponseWriter, _ *http.Request, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("Failed to marshal JSON response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"Failed to marshal response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// respondWithJSONRaw is a lower-level helper, useful when payload is already a map for error responses.
func respondWithJSONRaw(w http.ResponseWriter, status int, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"Critical: Failed to marshal error response"}}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
