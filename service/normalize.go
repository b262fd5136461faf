package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/marcussviniciusa/lyz-sub000/model"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Default content injected when the AI output carries nothing usable
const (
	defaultMarkerRecommendation  = "Discuss the flagged values with your physician or a relevant specialist."
	defaultGeneralRecommendation = "Maintain a balanced diet, regular physical activity and routine checkups."
	summaryDisplayLimit          = 600
	minRecommendationLength      = 5
)

// canonicalSchemaJSON describes an already-canonical response: a summary
// string, a recommendations array and one of the two accepted marker arrays.
const canonicalSchemaJSON = `{
	"type": "object",
	"required": ["summary", "recommendations"],
	"properties": {
		"summary": {"type": "string"},
		"recommendations": {"type": "array"}
	},
	"anyOf": [
		{"required": ["outOfRange"], "properties": {"outOfRange": {"type": "array"}}},
		{"required": ["markers"], "properties": {"markers": {"type": "array"}}}
	]
}`

// envelopeDetector names one known wrapping of the analysis payload. Real AI
// responses arrive wrapped inconsistently; detection is first-match-wins over
// an ordered table rather than ad hoc property probing.
type envelopeDetector struct {
	name   string
	unwrap func(m map[string]any) (any, bool)
}

var envelopeDetectors = []envelopeDetector{
	{"lab_results", func(m map[string]any) (any, bool) {
		v, ok := m["lab_results"]
		return v, ok
	}},
	{"data.analyzed_data", func(m map[string]any) (any, bool) {
		data, ok := m["data"].(map[string]any)
		if !ok {
			return nil, false
		}
		v, ok := data["analyzed_data"]
		return v, ok
	}},
	{"data", func(m map[string]any) (any, bool) {
		v, ok := m["data"]
		return v, ok
	}},
	{"analysis", func(m map[string]any) (any, bool) {
		// Only unwrap "analysis" when it is an object; a string here is a
		// summary field, not an envelope
		v, ok := m["analysis"].(map[string]any)
		return v, ok
	}},
	{"analyzed_data", func(m map[string]any) (any, bool) {
		v, ok := m["analyzed_data"]
		return v, ok
	}},
}

// Normalizer converts arbitrary AI output into a CanonicalResult. Normalize
// is a total function: it never fails, it degrades to default content.
type Normalizer struct {
	canonicalSchema *jsonschema.Schema
}

func NewNormalizer() *Normalizer {
	return &Normalizer{
		canonicalSchema: jsonschema.MustCompileString("canonical.json", canonicalSchemaJSON),
	}
}

// Normalize reconciles any AI output shape into the canonical result.
func (n *Normalizer) Normalize(raw any) model.CanonicalResult {
	switch v := raw.(type) {
	case nil:
		res := model.CanonicalResult{}
		finalizeResult(&res)
		return res
	case []byte:
		return n.Normalize(string(v))
	case json.RawMessage:
		return n.Normalize(string(v))
	case string:
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil || isScalar(decoded) {
			res := model.CanonicalResult{Summary: truncateForDisplay(v, summaryDisplayLimit)}
			finalizeResult(&res)
			return res
		}
		return n.Normalize(decoded)
	}

	if arr, ok := raw.([]any); ok {
		return n.normalizePageArray(arr)
	}

	m, ok := toJSONMap(raw)
	if !ok {
		res := model.CanonicalResult{Summary: truncateForDisplay(fmt.Sprintf("%v", raw), summaryDisplayLimit)}
		finalizeResult(&res)
		return res
	}

	unwrapped := unwrapEnvelope(m)

	switch u := unwrapped.(type) {
	case []any:
		return n.normalizePageArray(u)
	case string:
		return n.Normalize(u)
	case map[string]any:
		var res model.CanonicalResult
		if n.isCanonical(u) {
			res = adoptCanonical(u)
		} else {
			res = extractFields(u)
		}
		finalizeResult(&res)
		return res
	default:
		res := model.CanonicalResult{}
		finalizeResult(&res)
		return res
	}
}

// normalizePageArray treats an array payload as per-page partial results.
func (n *Normalizer) normalizePageArray(arr []any) model.CanonicalResult {
	if len(arr) == 0 {
		res := model.CanonicalResult{}
		finalizeResult(&res)
		return res
	}

	partials := make([]model.PagePartial, 0, len(arr))
	for i, item := range arr {
		pageNo := i + 1
		if m, ok := item.(map[string]any); ok {
			if num, found := pageNumberOf(m); found {
				pageNo = num
			}
		}
		partials = append(partials, model.PagePartial{
			PageNumber: pageNo,
			Result:     n.Normalize(item),
		})
	}
	return AggregatePages(partials)
}

// isCanonical checks the already-canonical shape against the compiled schema.
func (n *Normalizer) isCanonical(m map[string]any) bool {
	return n.canonicalSchema.Validate(m) == nil
}

func unwrapEnvelope(m map[string]any) any {
	for _, det := range envelopeDetectors {
		if v, ok := det.unwrap(m); ok && v != nil {
			return v
		}
	}
	return m
}

func adoptCanonical(m map[string]any) model.CanonicalResult {
	markers, _ := m["outOfRange"].([]any)
	if markers == nil {
		markers, _ = m["markers"].([]any)
	}

	summary, _ := m["summary"].(string)
	recs, _ := m["recommendations"].([]any)

	return model.CanonicalResult{
		Summary:         summary,
		Markers:         markersFromItems(markers, keepAll),
		Recommendations: recommendationStrings(recs),
	}
}

// extractFields runs the per-field fallback priority lists.
func extractFields(m map[string]any) model.CanonicalResult {
	return model.CanonicalResult{
		Summary:         extractSummary(m),
		Markers:         extractMarkers(m),
		Recommendations: extractRecommendations(m),
	}
}

func extractSummary(m map[string]any) string {
	if s, ok := m["summary"].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	if s, ok := m["description"].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	switch a := m["analysis"].(type) {
	case string:
		if strings.TrimSpace(a) != "" {
			return a
		}
	case map[string]any:
		if encoded, err := json.Marshal(a); err == nil {
			return truncateForDisplay(string(encoded), summaryDisplayLimit)
		}
	}
	if s, ok := m["overview"].(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	if s, ok := m["text"].(string); ok && strings.TrimSpace(s) != "" {
		return truncateForDisplay(s, summaryDisplayLimit)
	}
	return ""
}

func extractMarkers(m map[string]any) []model.Marker {
	if arr, ok := m["outOfRange"].([]any); ok {
		return markersFromItems(arr, keepAll)
	}
	if arr, ok := m["markers"].([]any); ok {
		return markersFromItems(arr, keepFlagged)
	}
	if arr, ok := m["results"].([]any); ok {
		return markersFromItems(arr, keepOutsideRange)
	}
	return nil
}

func extractRecommendations(m map[string]any) []string {
	switch recs := m["recommendations"].(type) {
	case []any:
		return recommendationStrings(recs)
	case map[string]any:
		return flattenRecommendationMap(recs)
	}
	if arr, ok := m["actions"].([]any); ok {
		return recommendationStrings(arr)
	}
	if arr, ok := m["interventions"].([]any); ok {
		return recommendationStrings(arr)
	}
	return nil
}

// markerFilter decides whether a raw marker item belongs in the result
type markerFilter func(m model.Marker) bool

func keepAll(model.Marker) bool { return true }

// keepFlagged keeps items whose interpretation flags them as out of range
func keepFlagged(m model.Marker) bool {
	flag := strings.ToLower(strings.ReplaceAll(m.Interpretation, "-", " "))
	for _, want := range []string{"high", "low", "abnormal", "out of range"} {
		if strings.Contains(flag, want) {
			return true
		}
	}
	return false
}

// keepOutsideRange keeps items whose numeric value falls outside the
// provided reference range. Unparseable values are not flagged.
func keepOutsideRange(m model.Marker) bool {
	value, err := strconv.ParseFloat(strings.TrimSpace(m.Value), 64)
	if err != nil {
		return false
	}

	lo, hi, ok := parseRange(m.ReferenceRange)
	if !ok {
		return false
	}
	return value < lo || value > hi
}

func parseRange(s string) (lo, hi float64, ok bool) {
	parts := strings.SplitN(strings.ReplaceAll(s, "–", "-"), "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	hi, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

func markersFromItems(items []any, keep markerFilter) []model.Marker {
	markers := make([]model.Marker, 0, len(items))
	for _, item := range items {
		marker, ok := markerFromAny(item)
		if !ok || !keep(marker) {
			continue
		}
		markers = append(markers, marker)
	}
	return markers
}

func markerFromAny(v any) (model.Marker, bool) {
	switch item := v.(type) {
	case string:
		if strings.TrimSpace(item) == "" {
			return model.Marker{}, false
		}
		return model.Marker{Name: item}, true
	case map[string]any:
		return model.Marker{
			Name:           firstString(item, "name", "marker", "test", "test_name", "parameter"),
			Value:          firstString(item, "value", "result", "observed"),
			Unit:           firstString(item, "unit", "units"),
			ReferenceRange: firstString(item, "referenceRange", "reference_range", "range", "refRange", "reference"),
			Interpretation: firstString(item, "interpretation", "status", "flag", "note"),
		}, true
	default:
		return model.Marker{}, false
	}
}

func firstString(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := stringifyScalar(v); strings.TrimSpace(s) != "" {
				return s
			}
		}
	}
	return ""
}

func stringifyScalar(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	case json.Number:
		return s.String()
	default:
		return ""
	}
}

func recommendationStrings(items []any) []string {
	recs := make([]string, 0, len(items))
	for _, item := range items {
		switch r := item.(type) {
		case string:
			recs = append(recs, r)
		case map[string]any:
			if s := firstString(r, "text", "recommendation", "action"); s != "" {
				recs = append(recs, s)
			}
		}
	}
	return recs
}

// flattenRecommendationMap turns an object of recommendations into
// "key: value" strings, sorted by key for stable output.
func flattenRecommendationMap(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	recs := make([]string, 0, len(keys))
	for _, k := range keys {
		var text string
		switch v := m[k].(type) {
		case string:
			text = v
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				if s := stringifyScalar(p); s != "" {
					parts = append(parts, s)
				}
			}
			text = strings.Join(parts, ", ")
		default:
			text = stringifyScalar(v)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		recs = append(recs, fmt.Sprintf("%s: %s", k, text))
	}
	return recs
}

// finalizeResult is the cleanup pass applied regardless of which detection
// path produced the result. It enforces the canonical invariants: unique
// marker names, filled marker sub-fields, deduplicated recommendations over
// 5 characters, and a non-empty summary.
func finalizeResult(res *model.CanonicalResult) {
	res.Markers = dedupeMarkers(res.Markers)
	res.Recommendations = cleanRecommendations(res.Recommendations)

	if len(res.Recommendations) == 0 {
		if len(res.Markers) > 0 {
			res.Recommendations = []string{defaultMarkerRecommendation}
		} else {
			res.Recommendations = []string{defaultGeneralRecommendation}
		}
	}

	if strings.TrimSpace(res.Summary) == "" {
		if n := len(res.Markers); n > 0 {
			res.Summary = fmt.Sprintf("%d value(s) outside the reference range were found in this report.", n)
		} else {
			res.Summary = "Analysis completed. No values outside the reference range were identified."
		}
	}
}

// dedupeMarkers drops duplicates by name, first occurrence wins, and fills
// missing sub-fields with explicit placeholders.
func dedupeMarkers(markers []model.Marker) []model.Marker {
	seen := make(map[string]struct{}, len(markers))
	out := make([]model.Marker, 0, len(markers))
	for _, m := range markers {
		if m.Name == "" {
			m.Name = "Unknown marker"
		}
		if _, dup := seen[m.Name]; dup {
			continue
		}
		seen[m.Name] = struct{}{}

		if m.Value == "" {
			m.Value = "N/A"
		}
		if m.Unit == "" {
			m.Unit = "N/A"
		}
		if m.ReferenceRange == "" {
			m.ReferenceRange = "Not provided"
		}
		if m.Interpretation == "" {
			m.Interpretation = "Outside reference range"
		}
		out = append(out, m)
	}
	return out
}

// cleanRecommendations trims, drops short entries and exact duplicates.
func cleanRecommendations(recs []string) []string {
	seen := make(map[string]struct{}, len(recs))
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		r = strings.TrimSpace(r)
		if len(r) <= minRecommendationLength {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

// truncateForDisplay cuts the string to at most limit bytes, backing up to a
// rune boundary so multi-byte text is never split mid-rune.
func truncateForDisplay(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// toJSONMap coerces any value into a decoded JSON object, round-tripping
// structs through encoding/json so Normalize stays total over Go types.
func toJSONMap(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(encoded, &m); err != nil {
		return nil, false
	}
	return m, true
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, float64, bool, json.Number:
		return true
	default:
		return false
	}
}

func pageNumberOf(m map[string]any) (int, bool) {
	for _, key := range []string{"pageNumber", "page_number", "page"} {
		if f, ok := m[key].(float64); ok && f > 0 {
			return int(f), true
		}
	}
	return 0, false
}
