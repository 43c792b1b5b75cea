package planner

import (
	"encoding/json"

	"github.com/Djtony707/TITAN/internal/store"
)

// selectBest picks the winning candidate index deterministically: highest
// Score first, then (spec §4.7) "lower risk, lower cost, then
// lexicographic on candidate digest".
func (p *Planner) selectBest(candidates []store.PlanCandidate) int {
	best := 0
	for i := 1; i < len(candidates); i++ {
		if better(candidates[i], candidates[best]) {
			best = i
		}
	}
	return best
}

func better(a, b store.PlanCandidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.RiskCost != b.RiskCost {
		return a.RiskCost < b.RiskCost
	}
	if a.TokenCost != b.TokenCost {
		return a.TokenCost < b.TokenCost
	}
	return a.Digest < b.Digest
}

// scoreBreakdownJSON renders the selection rationale (spec §4.7: "Persist
// all candidates and the selection rationale") as a compact JSON object
// naming every candidate's inputs to the scoring function and which one
// won.
func scoreBreakdownJSON(candidates []store.PlanCandidate, selected int) (string, error) {
	type entry struct {
		Digest     string  `json:"digest"`
		RiskCost   float64 `json:"risk_cost"`
		TokenCost  float64 `json:"token_cost"`
		Confidence float64 `json:"confidence"`
		Score      float64 `json:"score"`
		Selected   bool    `json:"selected"`
	}
	entries := make([]entry, len(candidates))
	for i, c := range candidates {
		entries[i] = entry{
			Digest:     c.Digest,
			RiskCost:   c.RiskCost,
			TokenCost:  c.TokenCost,
			Confidence: c.Confidence,
			Score:      c.Score,
			Selected:   i == selected,
		}
	}
	b, err := json.Marshal(struct {
		Candidates []entry `json:"candidates"`
		Selected   int     `json:"selected_index"`
	}{Candidates: entries, Selected: selected})
	if err != nil {
		return "", err
	}
	return string(b), nil
}
