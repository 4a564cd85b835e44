package core

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestNewError_AssignsStableCodes(t *testing.T) {
	tests := []struct {
		kind     error
		category goerrors.Category
		textCode string
		status   int
	}{
		{ErrMalformedPayload, goerrors.CategoryBadInput, ErrorMalformedPayload, http.StatusUnprocessableEntity},
		{ErrUnknownRootType, goerrors.CategoryBadInput, ErrorUnknownRootType, http.StatusUnprocessableEntity},
		{ErrUnknownFieldType, goerrors.CategoryValidation, ErrorUnknownFieldType, http.StatusUnprocessableEntity},
		{ErrUnsupportedOperator, goerrors.CategoryBadInput, ErrorUnsupportedOp, http.StatusBadRequest},
		{ErrTransportFailure, goerrors.CategoryExternal, ErrorTransportFailure, http.StatusBadGateway},
		{ErrInvalidSignature, goerrors.CategoryAuth, ErrorInvalidSignature, http.StatusUnauthorized},
		{ErrAmbiguousMerge, goerrors.CategoryConflict, ErrorAmbiguousMerge, http.StatusConflict},
		{ErrLockUnavailable, goerrors.CategoryConflict, ErrorLockUnavailable, http.StatusConflict},
	}
	for _, tt := range tests {
		err := NewError(tt.kind, "", map[string]any{"k": "v"})
		if err.Category != tt.category {
			t.Fatalf("%v: expected category %q, got %q", tt.kind, tt.category, err.Category)
		}
		if err.TextCode != tt.textCode {
			t.Fatalf("%v: expected text code %q, got %q", tt.kind, tt.textCode, err.TextCode)
		}
		if err.Code != tt.status {
			t.Fatalf("%v: expected status %d, got %d", tt.kind, tt.status, err.Code)
		}
		if !IsError(err, tt.kind) {
			t.Fatalf("%v: expected IsError match", tt.kind)
		}
	}
}

func TestIsError_MatchesWrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("poll failed: %w", ErrServerError)
	if !IsError(wrapped, ErrServerError) {
		t.Fatalf("expected wrapped sentinel match")
	}
	if IsError(wrapped, ErrClientError) {
		t.Fatalf("did not expect client error match")
	}
	if IsError(nil, ErrServerError) {
		t.Fatalf("did not expect nil match")
	}
}

func TestMapError_NormalizesPlainErrors(t *testing.T) {
	mapped := MapError(fmt.Errorf("lookup: %w", ErrInvalidSignature))
	if mapped.TextCode != ErrorInvalidSignature {
		t.Fatalf("expected invalid signature code, got %q", mapped.TextCode)
	}

	mapped = MapError(stderrors.New("core: record guid is required"))
	if mapped.TextCode != ErrorBadInput {
		t.Fatalf("expected bad input code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", mapped.Code)
	}

	mapped = MapError(ErrRecordNotFound)
	if mapped.Category != goerrors.CategoryNotFound {
		t.Fatalf("expected not found category, got %q", mapped.Category)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil mapping for nil error")
	}
}
