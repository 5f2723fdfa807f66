package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/haasonsaas/scenesync/internal/relay"
	"github.com/haasonsaas/scenesync/internal/scene"
)

const maxBodyBytes = 32 << 20

// healthResponse is the JSON body of GET /healthz.
type healthResponse struct {
	Status    string `json:"status"`
	SceneFile string `json:"scene_file"`
	Sessions  int    `json:"sessions"`
}

// exportResultRequest is the JSON form of a renderer's delivery. Browser
// canvases produce base64 data URLs, so both fields are accepted.
type exportResultRequest struct {
	DataURL string `json:"dataURL,omitempty"`
	Data    string `json:"data,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		SceneFile: s.relay.Store().Path(),
		Sessions:  s.relay.Hub().Len(),
	})
}

// handleScene serves GET (read document) and PUT (replace document).
func (s *Server) handleScene(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		doc, err := s.relay.Document()
		if err != nil {
			s.logger.Error("load scene failed", "error", err)
			s.jsonError(w, "failed to load scene", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, doc)
	case http.MethodPut, http.MethodPost:
		var doc scene.Document
		if err := decodeBody(r, &doc); err != nil {
			s.jsonError(w, "invalid scene document", http.StatusBadRequest)
			return
		}
		if err := s.relay.Replace(&doc); err != nil {
			if errors.Is(err, scene.ErrSchemaMismatch) {
				s.jsonError(w, "unsupported scene schema", http.StatusBadRequest)
				return
			}
			s.logger.Error("replace scene failed", "error", err)
			s.jsonError(w, "failed to save scene", http.StatusInternalServerError)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "elements": len(doc.Elements)})
	default:
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleElements serves POST /api/elements (create).
func (s *Server) handleElements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var el scene.Element
	if err := decodeBody(r, &el); err != nil {
		s.jsonError(w, "invalid element", http.StatusBadRequest)
		return
	}
	created, err := s.relay.CreateElement(el)
	if err != nil {
		if errors.Is(err, scene.ErrElementExists) {
			s.jsonError(w, "element already exists", http.StatusConflict)
			return
		}
		s.logger.Error("create element failed", "error", err)
		s.jsonError(w, "failed to create element", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusCreated, created)
}

// handleElement serves PATCH and DELETE on /api/elements/{id}.
func (s *Server) handleElement(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/elements/")
	if id == "" || strings.Contains(id, "/") {
		s.jsonError(w, "element id required", http.StatusBadRequest)
		return
	}
	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		var patch scene.Element
		if err := decodeBody(r, &patch); err != nil {
			s.jsonError(w, "invalid element patch", http.StatusBadRequest)
			return
		}
		updated, err := s.relay.UpdateElement(id, patch)
		if err != nil {
			s.elementError(w, id, err)
			return
		}
		s.writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if err := s.relay.DeleteElement(id); err != nil {
			s.elementError(w, id, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
	default:
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) elementError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, scene.ErrElementNotFound) {
		s.jsonError(w, "element not found: "+id, http.StatusNotFound)
		return
	}
	s.logger.Error("element operation failed", "id", id, "error", err)
	s.jsonError(w, "element operation failed", http.StatusInternalServerError)
}

// handleExport blocks until a connected renderer delivers the image or the
// export window expires. A second request while one is outstanding gets 409
// without disturbing the first.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := s.relay.Export()
	switch {
	case errors.Is(err, relay.ErrExportBusy):
		s.jsonError(w, "an export is already in flight", http.StatusConflict)
	case errors.Is(err, relay.ErrExportTimeout):
		s.jsonError(w, "no renderer responded in time", http.StatusGatewayTimeout)
	case err != nil:
		s.logger.Error("export failed", "error", err)
		s.jsonError(w, "export failed", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write(data); err != nil {
			s.logger.Warn("failed to write export bytes", "error", err)
		}
	}
}

// handleExportResult accepts the rendered image from the interactive side,
// either as a raw image body or as JSON carrying a base64 data URL.
func (s *Server) handleExportResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	data, err := readImageBody(r)
	if err != nil {
		s.jsonError(w, "invalid export payload", http.StatusBadRequest)
		return
	}
	if err := s.relay.Deliver(data); err != nil {
		if errors.Is(err, relay.ErrNoPendingExport) {
			s.jsonError(w, "no export request pending", http.StatusBadRequest)
			return
		}
		s.logger.Error("deliver export failed", "error", err)
		s.jsonError(w, "failed to deliver export", http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "bytes": len(data)})
}

func readImageBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if len(body) == 0 {
			return nil, errors.New("empty body")
		}
		return body, nil
	}
	var req exportResultRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	encoded := req.Data
	if encoded == "" {
		// data:image/png;base64,<payload>
		_, after, found := strings.Cut(req.DataURL, ",")
		if !found {
			return nil, errors.New("missing image payload")
		}
		encoded = after
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty image payload")
	}
	return data, nil
}

func decodeBody(r *http.Request, v any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
