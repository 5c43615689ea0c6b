package adminapi

import (
	"io"
	"net/http"

	"gopkg.in/yaml.v3"

	"github.com/l7waf/engine/internal/config"
	"github.com/l7waf/engine/internal/errors"
	"github.com/l7waf/engine/internal/httputil"
)

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg := s.manager.Current()
	data, err := yaml.Marshal(cfg)
	if err != nil {
		httputil.WriteError(w, errors.Internal(err))
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handlePutConfig validates and applies a replacement configuration
// document, driving the same atomic-reload path as a file/signal
// trigger. A rejected candidate leaves the running configuration
// untouched and reports why.
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		httputil.WriteError(w, errors.New(errors.ErrCodeInvalidRequest, "cannot read request body", http.StatusBadRequest))
		return
	}

	cfg, err := config.ParseYAML(body)
	if err != nil {
		httputil.WriteError(w, errors.InvalidConfig(err.Error()))
		return
	}

	if err := s.manager.Apply(cfg); err != nil {
		httputil.WriteError(w, errors.InvalidConfig(err.Error()))
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
