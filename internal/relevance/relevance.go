package relevance

import "context"

// Candidate is a product considered for relevance filtering.
type Candidate struct {
	ID    int64
	Title string
}

// Filter asks an external judge which candidates actually belong to a topic.
// Implementations must treat the verdict as advisory; callers decide what to
// do when the filter fails or empties the set.
type Filter interface {
	Relevant(ctx context.Context, topic string, candidates []Candidate) ([]int64, error)
}

// OfferScorer rates how well each title matches a sourcing query. Scores are
// in [0,1], aligned with the input order.
type OfferScorer interface {
	ScoreOffers(ctx context.Context, query string, titles []string) ([]float64, error)
}
