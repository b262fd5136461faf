package model

// PageText is one page of extracted document text
type PageText struct {
	Index   int    `json:"index"`
	RawText string `json:"raw_text"`
}

// QualityMetrics is advisory extraction quality metadata, not a correctness
// gate. Low-quality text still analyzes; only a genuinely empty result is an
// extraction error.
type QualityMetrics struct {
	IsEmpty                bool    `json:"is_empty"`
	ContainsMeaningfulText bool    `json:"contains_meaningful_text"`
	AverageCharsPerPage    float64 `json:"average_chars_per_page"`
	IsLikelyHighQuality    bool    `json:"is_likely_high_quality"`
}

// ExtractedDocument is the output of document text extraction. Pages is
// non-empty on success; extraction either fully succeeds or fails with a
// typed ExtractionError.
type ExtractedDocument struct {
	Pages   []PageText     `json:"pages"`
	Quality QualityMetrics `json:"quality_metrics"`
}

// FullText joins all page texts in page order.
func (d *ExtractedDocument) FullText() string {
	if len(d.Pages) == 0 {
		return ""
	}
	text := d.Pages[0].RawText
	for _, p := range d.Pages[1:] {
		text += "\n\n" + p.RawText
	}
	return text
}
