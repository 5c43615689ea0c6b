package adminapi

import (
	"net/http"
	"strconv"

	"github.com/l7waf/engine/internal/audit"
	"github.com/l7waf/engine/internal/httputil"
)

type logsResponse struct {
	Total   int           `json:"total"`
	Offset  int           `json:"offset"`
	Limit   int           `json:"limit"`
	Entries []audit.Entry `json:"entries"`
}

// handleLogs serves a paginated, optionally ip/rule_id-filtered window
// over the audit ring.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	offset := parseIntDefault(q.Get("offset"), 0)
	limit := parseIntDefault(q.Get("limit"), 100)
	ip := q.Get("ip")
	ruleID := q.Get("rule_id")

	entries := s.auditLog.Query(offset, limit, ip, ruleID)
	httputil.WriteJSON(w, http.StatusOK, logsResponse{
		Total:   s.auditLog.Len(),
		Offset:  offset,
		Limit:   limit,
		Entries: entries,
	})
}

func parseIntDefault(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return v
}
