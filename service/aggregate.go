package service

import (
	"sort"
	"strings"

	"github.com/marcussviniciusa/lyz-sub000/model"
)

// A first-page summary at least this long stands alone as the overall
// summary, avoiding bloated concatenation of every page.
const minStandaloneSummaryLength = 80

// Maximum per-page summaries joined when no single page is informative enough
const maxJoinedSummaries = 3

// AggregatePages merges per-page normalized partial results for a multi-page
// document into one canonical result. Markers and recommendations are
// unioned with first-seen-wins deduplication; the per-page breakdown is
// retained for traceability.
func AggregatePages(pages []model.PagePartial) model.CanonicalResult {
	res := model.CanonicalResult{
		Summary:         aggregateSummary(pages),
		Markers:         unionMarkers(pages),
		Recommendations: unionRecommendations(pages),
		Pages:           pageBreakdown(pages),
	}
	finalizeResult(&res)
	return res
}

func aggregateSummary(pages []model.PagePartial) string {
	type pageSummary struct {
		order int
		text  string
	}

	summaries := make([]pageSummary, 0, len(pages))
	for i, p := range pages {
		text := strings.TrimSpace(p.Result.Summary)
		if text == "" {
			continue
		}
		summaries = append(summaries, pageSummary{order: i, text: text})
	}

	if len(summaries) == 0 {
		return ""
	}

	if first := summaries[0]; first.order == 0 && len(first.text) >= minStandaloneSummaryLength {
		return first.text
	}

	// Join up to the N longest summaries, preserving page order among them
	picked := make([]pageSummary, len(summaries))
	copy(picked, summaries)
	sort.SliceStable(picked, func(i, j int) bool {
		return len(picked[i].text) > len(picked[j].text)
	})
	if len(picked) > maxJoinedSummaries {
		picked = picked[:maxJoinedSummaries]
	}
	sort.Slice(picked, func(i, j int) bool {
		return picked[i].order < picked[j].order
	})

	parts := make([]string, 0, len(picked))
	for _, s := range picked {
		parts = append(parts, s.text)
	}
	return strings.Join(parts, "\n\n")
}

func unionMarkers(pages []model.PagePartial) []model.Marker {
	seen := make(map[string]struct{})
	var out []model.Marker
	for _, p := range pages {
		for _, m := range p.Result.Markers {
			if _, dup := seen[m.Name]; dup {
				continue
			}
			seen[m.Name] = struct{}{}
			out = append(out, m)
		}
	}
	return out
}

func unionRecommendations(pages []model.PagePartial) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range pages {
		for _, r := range p.Result.Recommendations {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	return out
}

func pageBreakdown(pages []model.PagePartial) []model.PageSummary {
	out := make([]model.PageSummary, 0, len(pages))
	for _, p := range pages {
		out = append(out, model.PageSummary{
			PageNumber: p.PageNumber,
			Summary:    p.Result.Summary,
		})
	}
	return out
}
