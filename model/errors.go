package model

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when a submission carries neither document
// bytes nor a manual text summary.
var ErrInvalidInput = errors.New("either a document or a manual summary text is required")

// ExtractionErrorKind classifies document extraction failures
type ExtractionErrorKind string

const (
	ExtractPasswordProtected ExtractionErrorKind = "password_protected"
	ExtractCorruptFile       ExtractionErrorKind = "corrupt_file"
	ExtractMemoryLimit       ExtractionErrorKind = "memory_limit"
	ExtractEmptyFile         ExtractionErrorKind = "empty_file"
	ExtractTooSmall          ExtractionErrorKind = "too_small"
	ExtractNotADocument      ExtractionErrorKind = "not_a_document"
	ExtractTimeout           ExtractionErrorKind = "timeout"
	ExtractUnknown           ExtractionErrorKind = "unknown"
)

// extractionMessages maps each kind to its user-facing message. Table-driven
// so call sites never infer wording themselves.
var extractionMessages = map[ExtractionErrorKind]string{
	ExtractPasswordProtected: "The document is password protected. Remove the password and upload it again.",
	ExtractCorruptFile:       "The document appears to be corrupted and could not be read.",
	ExtractMemoryLimit:       "The document is too large to process. Try splitting it into smaller files.",
	ExtractEmptyFile:         "No text could be extracted from the document.",
	ExtractTooSmall:          "The file is too small to be a valid document.",
	ExtractNotADocument:      "The file does not look like a supported document format.",
	ExtractTimeout:           "Text extraction took too long and was aborted.",
	ExtractUnknown:           "An unexpected error occurred while reading the document.",
}

// ExtractionError is a typed extraction failure
type ExtractionError struct {
	Kind ExtractionErrorKind
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("extraction failed (%s)", e.Kind)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// UserMessage returns the clinician-facing message for this error kind.
func (e *ExtractionError) UserMessage() string {
	if msg, ok := extractionMessages[e.Kind]; ok {
		return msg
	}
	return extractionMessages[ExtractUnknown]
}

// NewExtractionError wraps err with an extraction error kind.
func NewExtractionError(kind ExtractionErrorKind, err error) *ExtractionError {
	return &ExtractionError{Kind: kind, Err: err}
}

// AnalysisErrorKind classifies AI invocation failures
type AnalysisErrorKind string

const (
	AnalysisTokenLimit          AnalysisErrorKind = "token_limit_exceeded"
	AnalysisUpstreamUnavailable AnalysisErrorKind = "upstream_unavailable"
	AnalysisMalformedResponse   AnalysisErrorKind = "malformed_response"
	AnalysisTimeout             AnalysisErrorKind = "timeout"
)

var analysisMessages = map[AnalysisErrorKind]string{
	AnalysisTokenLimit:          "The document exceeds the analysis size limit. Try a shorter document.",
	AnalysisUpstreamUnavailable: "The analysis service is temporarily unavailable. Please try again later.",
	AnalysisMalformedResponse:   "The analysis service returned an unusable response.",
	AnalysisTimeout:             "The analysis took too long and was aborted.",
}

// AnalysisError is a typed AI invocation failure
type AnalysisError struct {
	Kind AnalysisErrorKind
	Err  error
}

func (e *AnalysisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("analysis failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("analysis failed (%s)", e.Kind)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// UserMessage returns the clinician-facing message for this error kind.
func (e *AnalysisError) UserMessage() string {
	if msg, ok := analysisMessages[e.Kind]; ok {
		return msg
	}
	return analysisMessages[AnalysisUpstreamUnavailable]
}

// NewAnalysisError wraps err with an analysis error kind.
func NewAnalysisError(kind AnalysisErrorKind, err error) *AnalysisError {
	return &AnalysisError{Kind: kind, Err: err}
}
