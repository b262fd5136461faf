package service

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/marcussviniciusa/lyz-sub000/config"
	"github.com/marcussviniciusa/lyz-sub000/model"
)

// Magic byte prefixes for the accepted upload formats
var (
	pdfMagic  = []byte("%PDF-")
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
)

// DocumentKind sniffs the file format from its magic bytes.
func DocumentKind(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return "pdf"
	case bytes.HasPrefix(data, jpegMagic):
		return "jpeg"
	case bytes.HasPrefix(data, pngMagic):
		return "png"
	default:
		return "unknown"
	}
}

var (
	excessNewlines = regexp.MustCompile(`\n{3,}`)
	spaceRuns      = regexp.MustCompile(`[ \t]{2,}`)
	meaningfulText = regexp.MustCompile(`[A-Za-z]{3,}`)
)

// CleanExtractedText collapses excessive whitespace before quality scoring:
// 3+ newlines become 2, runs of spaces become 1.
func CleanExtractedText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Extractor turns uploaded document bytes into plain text plus quality
// metadata. Extraction either fully succeeds with at least one non-empty
// page or fails with a typed ExtractionError.
type Extractor struct {
	timeout  time.Duration
	minBytes int
	maxBytes int64
}

func NewExtractor(cfg *config.ExtractConfig) *Extractor {
	return &Extractor{
		timeout:  time.Duration(cfg.TimeoutSeconds) * time.Second,
		minBytes: cfg.MinBytes,
		maxBytes: cfg.MaxBytes,
	}
}

// ValidateDocument runs the cheap synchronous gates: size bounds and magic
// byte sniffing. Callers run it before a job leaves pending, so trivially
// invalid uploads never reach the processing state. The returned error, when
// non-nil, is always a *model.ExtractionError.
func (e *Extractor) ValidateDocument(data []byte) error {
	if len(data) < e.minBytes {
		return model.NewExtractionError(model.ExtractTooSmall,
			fmt.Errorf("file is %d bytes, minimum is %d", len(data), e.minBytes))
	}
	if e.maxBytes > 0 && int64(len(data)) > e.maxBytes {
		return model.NewExtractionError(model.ExtractMemoryLimit,
			fmt.Errorf("file is %d bytes, maximum is %d", len(data), e.maxBytes))
	}
	if DocumentKind(data) == "unknown" {
		return model.NewExtractionError(model.ExtractNotADocument,
			fmt.Errorf("unrecognized file header"))
	}
	return nil
}

// Extract validates and extracts text from a document. The returned error,
// when non-nil, is always a *model.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, data []byte) (*model.ExtractedDocument, error) {
	if err := e.ValidateDocument(data); err != nil {
		return nil, err
	}

	switch DocumentKind(data) {
	case "pdf":
		// fall through to extraction below
	case "jpeg", "png":
		// Valid uploads, but they carry no extractable text layer
		return nil, model.NewExtractionError(model.ExtractNotADocument,
			fmt.Errorf("image files have no text layer"))
	default:
		return nil, model.NewExtractionError(model.ExtractNotADocument,
			fmt.Errorf("unrecognized file header"))
	}

	type outcome struct {
		doc *model.ExtractedDocument
		err error
	}

	ch := make(chan outcome, 1)
	go func() {
		doc, err := extractPDF(data)
		ch <- outcome{doc: doc, err: err}
	}()

	timer := time.NewTimer(e.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		return out.doc, out.err
	case <-ctx.Done():
		return nil, model.NewExtractionError(model.ExtractTimeout, ctx.Err())
	case <-timer.C:
		return nil, model.NewExtractionError(model.ExtractTimeout,
			fmt.Errorf("extraction exceeded %s", e.timeout))
	}
}

// extractPDF reads every page's text layer. The pdf library panics on some
// malformed inputs, so the whole pass runs under a recover.
func extractPDF(data []byte) (doc *model.ExtractedDocument, err error) {
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = model.NewExtractionError(model.ExtractCorruptFile, fmt.Errorf("pdf parser panic: %v", r))
		}
	}()

	reader, rerr := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if rerr != nil {
		return nil, classifyPDFError(rerr)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, model.NewExtractionError(model.ExtractEmptyFile, fmt.Errorf("document has no pages"))
	}

	pages := make([]model.PageText, 0, numPages)
	totalChars := 0
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		text, terr := page.GetPlainText(nil)
		if terr != nil {
			// A single unreadable page is tolerated; a document where every
			// page fails surfaces as empty below
			continue
		}

		text = CleanExtractedText(text)
		pages = append(pages, model.PageText{Index: len(pages), RawText: text})
		totalChars += len(text)
	}

	if len(pages) == 0 || totalChars == 0 {
		return nil, model.NewExtractionError(model.ExtractEmptyFile,
			fmt.Errorf("no text could be extracted from %d pages", numPages))
	}

	avg := float64(totalChars) / float64(len(pages))
	full := (&model.ExtractedDocument{Pages: pages}).FullText()

	return &model.ExtractedDocument{
		Pages: pages,
		Quality: model.QualityMetrics{
			IsEmpty:                totalChars == 0,
			ContainsMeaningfulText: meaningfulText.MatchString(full),
			AverageCharsPerPage:    avg,
			IsLikelyHighQuality:    avg > 200,
		},
	}, nil
}

func classifyPDFError(err error) *model.ExtractionError {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "encrypted") || strings.Contains(msg, "password"):
		return model.NewExtractionError(model.ExtractPasswordProtected, err)
	case strings.Contains(msg, "not a pdf") || strings.Contains(msg, "malformed") || strings.Contains(msg, "invalid"):
		return model.NewExtractionError(model.ExtractCorruptFile, err)
	default:
		return model.NewExtractionError(model.ExtractUnknown, err)
	}
}
