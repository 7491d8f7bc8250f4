package relevance

import "context"

// Noop keeps everything. Used when no API key is configured so the pipelines
// run unfiltered instead of failing.
type Noop struct{}

func NewNoop() *Noop { return &Noop{} }

func (Noop) Relevant(_ context.Context, _ string, candidates []Candidate) ([]int64, error) {
	ids := make([]int64, 0, len(candidates))
	for _, c := range candidates {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (Noop) ScoreOffers(_ context.Context, _ string, titles []string) ([]float64, error) {
	scores := make([]float64, len(titles))
	for i := range scores {
		scores[i] = 1
	}
	return scores, nil
}
