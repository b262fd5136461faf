package client

import (
	"github.com/marcussviniciusa/lyz-sub000/model"
)

// FallbackResultProvider supplies clearly-labeled demonstration content for
// the one case where the real pipeline cannot answer at all: the status
// endpoint unreachable before any progress was observed. It lives at the
// outermost client boundary and is never reachable from the server-side job
// pipeline.
type FallbackResultProvider struct {
	result model.CanonicalResult
}

// NewFallbackResultProvider returns a provider with sample lab content.
func NewFallbackResultProvider() *FallbackResultProvider {
	return &FallbackResultProvider{
		result: model.CanonicalResult{
			Summary: "Sample analysis (demonstration data): 2 values outside the reference range were found in this report.",
			Markers: []model.Marker{
				{
					Name:           "Glucose",
					Value:          "112",
					Unit:           "mg/dL",
					ReferenceRange: "70-99",
					Interpretation: "High",
				},
				{
					Name:           "Vitamin D, 25-OH",
					Value:          "21",
					Unit:           "ng/mL",
					ReferenceRange: "30-100",
					Interpretation: "Low",
				},
			},
			Recommendations: []string{
				"Demonstration data only: the analysis service could not be reached.",
				"Retry the analysis once your connection is restored.",
			},
		},
	}
}

// Result returns the demo status response, tagged IsDemo so it is never
// mistaken for a genuine completed analysis.
func (f *FallbackResultProvider) Result() StatusResponse {
	data := f.result
	return StatusResponse{
		Status:       string(model.JobCompleted),
		Progress:     100,
		IsProcessing: false,
		Data:         &data,
		Message:      "Showing demonstration content; the analysis service was unreachable.",
		IsDemo:       true,
	}
}
