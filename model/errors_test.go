package model

import (
	"errors"
	"strings"
	"testing"
)

func TestExtractionErrorUserMessages(t *testing.T) {
	kinds := []ExtractionErrorKind{
		ExtractPasswordProtected,
		ExtractCorruptFile,
		ExtractMemoryLimit,
		ExtractEmptyFile,
		ExtractTooSmall,
		ExtractNotADocument,
		ExtractTimeout,
		ExtractUnknown,
	}

	seen := make(map[string]ExtractionErrorKind)
	for _, kind := range kinds {
		err := NewExtractionError(kind, nil)
		msg := err.UserMessage()
		if msg == "" {
			t.Errorf("Kind %s has no user message", kind)
		}
		if prev, dup := seen[msg]; dup {
			t.Errorf("Kinds %s and %s share the message %q", prev, kind, msg)
		}
		seen[msg] = kind
	}
}

func TestExtractionErrorUnknownKindFallsBack(t *testing.T) {
	err := &ExtractionError{Kind: ExtractionErrorKind("made_up")}
	if err.UserMessage() != extractionMessages[ExtractUnknown] {
		t.Error("Expected unknown-kind fallback message")
	}
}

func TestExtractionErrorWrapping(t *testing.T) {
	cause := errors.New("root cause")
	err := NewExtractionError(ExtractCorruptFile, cause)

	if !errors.Is(err, cause) {
		t.Error("Expected wrapped cause to be reachable via errors.Is")
	}
	if !strings.Contains(err.Error(), "corrupt_file") {
		t.Errorf("Expected kind in error string, got %q", err.Error())
	}

	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatal("Expected errors.As to find ExtractionError")
	}
	if extErr.Kind != ExtractCorruptFile {
		t.Errorf("Expected corrupt_file, got %s", extErr.Kind)
	}
}

func TestAnalysisErrorUserMessages(t *testing.T) {
	kinds := []AnalysisErrorKind{
		AnalysisTokenLimit,
		AnalysisUpstreamUnavailable,
		AnalysisMalformedResponse,
		AnalysisTimeout,
	}

	for _, kind := range kinds {
		err := NewAnalysisError(kind, nil)
		if err.UserMessage() == "" {
			t.Errorf("Kind %s has no user message", kind)
		}
		if !strings.Contains(err.Error(), string(kind)) {
			t.Errorf("Expected kind in error string, got %q", err.Error())
		}
	}
}

func TestJobStatusTerminal(t *testing.T) {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobPending, false},
		{JobProcessing, false},
		{JobCompleted, true},
		{JobFailed, true},
	}

	for _, tt := range tests {
		if tt.status.Terminal() != tt.terminal {
			t.Errorf("Status %s: expected terminal=%v", tt.status, tt.terminal)
		}
	}
}
