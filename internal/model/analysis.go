package model

// Sentinel values returned for a customer whose analysis failed.
const (
	FailedReason   = "Error occurred during analysis"
	NoReasonGiven  = "No specific reason provided"
	NotAnalyzed    = "Analysis not available"
	AutoSelectMark = 50
)

// AnalysisResult is the per-customer outcome of a scoring run.
type AnalysisResult struct {
	CustomerID   string  `json:"customerId"`
	CustomerName string  `json:"customerName"`
	Likelihood   float64 `json:"likelihood"`
	Reason       string  `json:"reason"`

	// Failed marks results synthesized after an LLM or parse failure.
	Failed bool `json:"-"`
}

// FailedResult builds the sentinel result for a customer whose call failed.
func FailedResult(c Customer) AnalysisResult {
	return AnalysisResult{
		CustomerID:   c.ID,
		CustomerName: c.Name,
		Likelihood:   0,
		Reason:       FailedReason,
		Failed:       true,
	}
}

// Bucket groups customers by likelihood for display.
type Bucket string

const (
	BucketHigh   Bucket = "high"
	BucketMedium Bucket = "medium"
	BucketLow    Bucket = "low"
)

// BucketFor maps a likelihood onto its display bucket.
func BucketFor(likelihood float64) Bucket {
	switch {
	case likelihood >= 75:
		return BucketHigh
	case likelihood >= 50:
		return BucketMedium
	default:
		return BucketLow
	}
}

// ScoredCustomer is a customer joined with its analysis, as shown in the
// review list.
type ScoredCustomer struct {
	Customer
	Likelihood float64 `json:"likelihood"`
	Reason     string  `json:"reason"`
	Bucket     Bucket  `json:"bucket"`
	Selected   bool    `json:"selected"`
}

// Analysis is the payload returned by the analyze endpoints.
type Analysis struct {
	Results      []AnalysisResult `json:"results"`
	LikeEstimate *int             `json:"likeestimate,omitempty"`
	Usage        *TokenUsage      `json:"usage,omitempty"`
}
