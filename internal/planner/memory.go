package planner

import "context"

const memoryLookback = 20

// retrievalConfidence scores how well the goal description resembles the
// recent episodic memory record with the best token overlap (spec §4.7:
// "given a goal description and recent memory context"). A goal that
// closely resembles a past episode is one the Planner should be more
// confident about; a novel goal with no overlap scores 0.
func (p *Planner) retrievalConfidence(ctx context.Context, goalDesc string) (float64, error) {
	episodes, err := p.st.ListEpisodicMemory(ctx, memoryLookback)
	if err != nil {
		return 0, err
	}
	if len(episodes) == 0 {
		return 0, nil
	}

	goalTokens := tokenize(goalDesc)
	if len(goalTokens) == 0 {
		return 0, nil
	}

	var best float64
	for _, ep := range episodes {
		if jaccard := jaccardSimilarity(goalTokens, tokenize(ep.Summary)); jaccard > best {
			best = jaccard
		}
	}
	return clamp01(best), nil
}

func jaccardSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if b[tok] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}
