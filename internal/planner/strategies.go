package planner

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Djtony707/TITAN/internal/apperr"
	"github.com/Djtony707/TITAN/internal/ids"
	"github.com/Djtony707/TITAN/internal/store"
	"github.com/Djtony707/TITAN/internal/tools"
)

const (
	minCandidates = 2
	maxCandidates = 5
)

// classRiskCost assigns a per-step risk weight by capability class, higher
// for classes the Policy Engine treats as more dangerous (spec §4.7:
// "higher capability classes cost more").
var classRiskCost = map[tools.CapabilityClass]float64{
	tools.CapabilityRead:  1,
	tools.CapabilityNet:   2,
	tools.CapabilityWrite: 3,
	tools.CapabilityExec:  4,
}

// classOrder fixes a deterministic capability ordering candidates assemble
// their steps in: cheapest, least-risky operations first.
var classOrder = []tools.CapabilityClass{tools.CapabilityRead, tools.CapabilityNet, tools.CapabilityWrite, tools.CapabilityExec}

var tokenPattern = regexp.MustCompile(`[a-zA-Z0-9]+`)

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, t := range tokenPattern.FindAllString(strings.ToLower(s), -1) {
		tokens[t] = true
	}
	return tokens
}

// toolMatch pairs a registered tool with its keyword-overlap score against
// the goal description.
type toolMatch struct {
	tool  *tools.Tool
	score int
}

func (p *Planner) matchTools(goalDesc string) []toolMatch {
	goalTokens := tokenize(goalDesc)
	all := p.registry.All()

	matches := make([]toolMatch, 0, len(all))
	for _, t := range all {
		matches = append(matches, toolMatch{tool: t, score: overlapScore(t, goalTokens)})
	}

	// Deterministic ordering: highest overlap first, ties broken
	// lexicographically by tool name so reruns over an unchanged catalogue
	// produce an identical match ranking.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].tool.Name < matches[j].tool.Name
	})
	return matches
}

func overlapScore(t *tools.Tool, goalTokens map[string]bool) int {
	nameTokens := tokenize(strings.ReplaceAll(t.Name, ".", " "))
	descTokens := tokenize(t.Description)
	score := 0
	for tok := range nameTokens {
		if goalTokens[tok] {
			score += 2 // name matches count double: a tool named for the goal is a stronger signal than a description mention
		}
	}
	for tok := range descTokens {
		if goalTokens[tok] {
			score++
		}
	}
	return score
}

// generateCandidates builds 2-5 deterministic candidate plans by slicing
// the ranked tool-match list under a handful of fixed strategies (how many
// steps, and whether exec/write/net steps are admitted at all). Strategies
// that would duplicate an already-built candidate's step sequence are
// skipped; if fewer than minCandidates distinct candidates result, a
// single-step fallback candidate is appended (its tool is chosen by
// buildSteps' capability-class order, so it is not necessarily the top
// match).
func (p *Planner) generateCandidates(goalDesc string, memoryConfidence float64) ([]store.PlanCandidate, error) {
	matches := p.matchTools(goalDesc)
	if len(matches) == 0 {
		return nil, errNoTools
	}

	type strategy struct {
		name       string
		maxSteps   int
		readOnly   bool
		requireHit bool // only include tools with score > 0
	}
	strategies := []strategy{
		{name: "minimal", maxSteps: 1, requireHit: true},
		{name: "conservative-read-only", maxSteps: 3, readOnly: true, requireHit: true},
		{name: "standard", maxSteps: 3, requireHit: true},
		{name: "thorough", maxSteps: 5, requireHit: true},
		{name: "broad", maxSteps: 5, requireHit: false},
	}

	seenDigests := make(map[string]bool)
	var candidates []store.PlanCandidate

	for _, strat := range strategies {
		steps := buildSteps(matches, strat.maxSteps, strat.readOnly, strat.requireHit)
		if len(steps) == 0 {
			continue
		}
		cand, err := scoreCandidate(p.weights, steps, matches, memoryConfidence)
		if err != nil {
			return nil, err
		}
		if seenDigests[cand.Digest] {
			continue
		}
		seenDigests[cand.Digest] = true
		candidates = append(candidates, cand)
		if len(candidates) == maxCandidates {
			break
		}
	}

	if len(candidates) < minCandidates {
		fallback := buildSteps(matches, 1, false, false)
		cand, err := scoreCandidate(p.weights, fallback, matches, memoryConfidence)
		if err != nil {
			return nil, err
		}
		if !seenDigests[cand.Digest] {
			candidates = append(candidates, cand)
		}
	}
	if len(candidates) < minCandidates {
		return nil, apperr.Invariant("planner_insufficient_candidates", fmt.Errorf("only %d distinct candidate(s) could be built", len(candidates)))
	}
	return candidates, nil
}

func buildSteps(matches []toolMatch, maxSteps int, readOnly, requireHit bool) []store.CandidateStep {
	byClass := make(map[tools.CapabilityClass][]toolMatch)
	for _, m := range matches {
		if requireHit && m.score == 0 {
			continue
		}
		if readOnly && m.tool.Capability != tools.CapabilityRead {
			continue
		}
		byClass[m.tool.Capability] = append(byClass[m.tool.Capability], m)
	}

	var steps []store.CandidateStep
	for _, class := range classOrder {
		for _, m := range byClass[class] {
			if len(steps) >= maxSteps {
				return steps
			}
			steps = append(steps, store.CandidateStep{
				ToolName:        m.tool.Name,
				Args:            map[string]any{},
				CapabilityClass: store.CapabilityClass(m.tool.Capability),
				RequiredInputs:  []string{},
				RequiredOutputs: []string{},
			})
		}
	}
	return steps
}

func scoreCandidate(w Weights, steps []store.CandidateStep, matches []toolMatch, memoryConfidence float64) (store.PlanCandidate, error) {
	var riskCost float64
	for _, s := range steps {
		riskCost += classRiskCost[tools.CapabilityClass(s.CapabilityClass)]
	}
	tokenCost := float64(len(steps)) * 50

	matchConfidence := averageMatchConfidence(steps, matches)
	confidence := clamp01((matchConfidence + memoryConfidence) / 2)

	score := w.Confidence*confidence - w.Risk*normalize(riskCost, float64(len(classRiskCost))*float64(maxCandidates)) - w.Cost*normalize(tokenCost, float64(maxCandidates)*5*50)

	digest, err := ids.Digest(steps)
	if err != nil {
		return store.PlanCandidate{}, err
	}

	return store.PlanCandidate{
		Digest:     digest,
		Steps:      steps,
		RiskCost:   riskCost,
		TokenCost:  tokenCost,
		Confidence: confidence,
		Score:      score,
	}, nil
}

func averageMatchConfidence(steps []store.CandidateStep, matches []toolMatch) float64 {
	if len(steps) == 0 {
		return 0
	}
	byName := make(map[string]int, len(matches))
	maxScore := 1
	for _, m := range matches {
		byName[m.tool.Name] = m.score
		if m.score > maxScore {
			maxScore = m.score
		}
	}
	var sum float64
	for _, s := range steps {
		sum += float64(byName[s.ToolName]) / float64(maxScore)
	}
	return sum / float64(len(steps))
}

func normalize(v, scale float64) float64 {
	if scale <= 0 {
		return 0
	}
	return clamp01(v / scale)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
