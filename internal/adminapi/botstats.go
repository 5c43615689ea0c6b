package adminapi

import (
	"net/http"

	"github.com/l7waf/engine/internal/httputil"
)

type botStatsResponse struct {
	BotsDetected     uint64  `json:"bots_detected"`
	ChallengesIssued uint64  `json:"challenges_issued"`
	ChallengesSolved uint64  `json:"challenges_solved"`
	PassRate         float64 `json:"pass_rate"`
}

// handleBotStats reports bot-detection counters and the fraction of
// total requests that were not flagged as bot traffic.
func (s *Server) handleBotStats(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()
	passRate := 1.0
	if snap.TotalRequests > 0 {
		passRate = 1 - float64(snap.BotsDetected)/float64(snap.TotalRequests)
	}
	httputil.WriteJSON(w, http.StatusOK, botStatsResponse{
		BotsDetected:     snap.BotsDetected,
		ChallengesIssued: snap.ChallengesIssued,
		ChallengesSolved: snap.ChallengesSolved,
		PassRate:         passRate,
	})
}
