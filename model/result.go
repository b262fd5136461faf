package model

// Marker is one out-of-reference-range lab value with interpretation
type Marker struct {
	Name           string `json:"name"`
	Value          string `json:"value"`
	Unit           string `json:"unit"`
	ReferenceRange string `json:"referenceRange"`
	Interpretation string `json:"interpretation"`
}

// PageSummary is the per-page breakdown retained for traceability
type PageSummary struct {
	PageNumber int    `json:"pageNumber"`
	Summary    string `json:"summary"`
}

// CanonicalResult is the single normalized shape all AI analysis output is
// converted into. Summary and Recommendations are never empty; markers are
// unique by name.
type CanonicalResult struct {
	Summary         string        `json:"summary"`
	Markers         []Marker      `json:"markers"`
	Recommendations []string      `json:"recommendations"`
	Pages           []PageSummary `json:"pages,omitempty"`
}

// PagePartial is one page's normalized partial result, aggregated into a
// single CanonicalResult for multi-page documents.
type PagePartial struct {
	PageNumber int
	Result     CanonicalResult
}
