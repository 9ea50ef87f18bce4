package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"mcpd/internal/sandbox"
	"mcpd/internal/version"
)

type healthResponse struct {
	OK      bool   `json:"ok"`
	Status  string `json:"status"`
	Version string `json:"version"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Status: "ok", Version: version.Version})
	s.monitor.RecordCheck(true, float64(time.Since(start).Microseconds())/1000)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := s.sandbox.List(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	b, err := s.sandbox.Read(r.URL.Query().Get("path"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

type writeRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// rejectReadOnly refuses writes on a read-only server before auth runs, so
// the answer is 403 whatever token the caller presents.
func (s *Server) rejectReadOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.gate.ReadOnly {
			writeError(w, http.StatusForbidden, sandbox.ErrReadOnly.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleWrite runs behind the auth gate. The write gate is checked before
// the body is read so a disabled server never looks at the content.
func (s *Server) handleWrite(w http.ResponseWriter, r *http.Request) {
	if err := s.gate.Check(); err != nil {
		writeError(w, http.StatusForbidden, err.Error())
		return
	}
	if s.cfg.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	if err := s.sandbox.Write(req.Path, []byte(req.Content)); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Info("fs.write", zap.String("path", req.Path), zap.Int("bytes", len(req.Content)), zap.String("via", "http"))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
