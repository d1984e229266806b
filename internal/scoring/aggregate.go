package scoring

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tailorreach/internal/model"
)

// ErrEmptyResults is returned when there is nothing to aggregate.
var ErrEmptyResults = eris.New("scoring: no results to aggregate")

// Aggregate returns the mean likelihood rounded half up, clamped to
// [0, 100]. Failed results count as zero.
func Aggregate(results []model.AnalysisResult) (int, error) {
	if len(results) == 0 {
		return 0, ErrEmptyResults
	}
	var sum float64
	for _, r := range results {
		sum += clamp(r.Likelihood)
	}
	mean := sum / float64(len(results))
	return int(clamp(math.Floor(mean + 0.5))), nil
}

// Merge joins scored results onto customers in customer order. A customer
// with no result gets zero and NotAnalyzed. Customers at or above
// AutoSelectMark are pre-selected for outreach.
func Merge(customers []model.Customer, results []model.AnalysisResult) []model.ScoredCustomer {
	byID := make(map[string]model.AnalysisResult, len(results))
	for _, r := range results {
		byID[r.CustomerID] = r
	}

	out := make([]model.ScoredCustomer, len(customers))
	for i, c := range customers {
		sc := model.ScoredCustomer{Customer: c, Reason: model.NotAnalyzed}
		if r, ok := byID[c.ID]; ok {
			sc.Likelihood = r.Likelihood
			if r.Reason != "" {
				sc.Reason = r.Reason
			}
		}
		sc.Bucket = model.BucketFor(sc.Likelihood)
		sc.Selected = sc.Likelihood >= model.AutoSelectMark
		out[i] = sc
	}
	return out
}

// Selected returns the ids of pre-selected customers.
func Selected(scored []model.ScoredCustomer) []string {
	var ids []string
	for _, s := range scored {
		if s.Selected {
			ids = append(ids, s.ID)
		}
	}
	return ids
}
