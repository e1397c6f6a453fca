package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestStoreError_Error(t *testing.T) {
	err := New(ErrCategoryWrite, CodeUniqueAttribute, "duplicate key")
	expected := "[WRITE:UNIQUE_ATTRIBUTE] duplicate key"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestStoreError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategoryTransport, CodeUnavailable, "put failed", cause)
	expected := "[TRANSPORT:UNAVAILABLE] put failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestStoreError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategoryReindex, CodeReindexFailed, "chunk failed", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestStoreError_Is(t *testing.T) {
	err1 := New(ErrCategoryWrite, CodeUniqueAttribute, "first")
	err2 := New(ErrCategoryWrite, CodeUniqueAttribute, "second")
	err3 := New(ErrCategoryWrite, CodeInvalidIndexType, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategoryTransport, CodeTimeout, true},
		{ErrCategoryTransport, CodeUnavailable, true},
		{ErrCategoryWrite, CodeOverloaded, true},
		{ErrCategoryWrite, CodeUniqueAttribute, false},
		{ErrCategoryWrite, CodeInvalidIndexType, false},
		{ErrCategoryBucket, CodeBucketExists, false},
		{ErrCategoryReindex, CodeReindexFailed, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestIsNonTransientWrite(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"unique attribute", NewWriteError(CodeUniqueAttribute, "dup", nil), true},
		{"invalid index type", NewWriteError(CodeInvalidIndexType, "bad type", nil), true},
		{"wrapped unique", fmt.Errorf("put: %w", NewWriteError(CodeUniqueAttribute, "dup", nil)), true},
		{"timeout", NewTransportError(CodeTimeout, "slow", nil), false},
		{"overloaded", NewWriteError(CodeOverloaded, "busy", nil), false},
		{"bucket missing", NewBucketError(CodeBucketNotFound, "gone", nil), false},
		{"untyped", fmt.Errorf("socket closed"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		if got := IsNonTransientWrite(tt.err); got != tt.want {
			t.Errorf("%s: IsNonTransientWrite = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := New(ErrCategoryBucket, CodeBucketVersion, "stale")
	if GetCategory(err) != ErrCategoryBucket {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategoryBucket)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-StoreError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := New(ErrCategoryBucket, CodeBucketVersion, "stale")
	if GetCode(err) != CodeBucketVersion {
		t.Errorf("got %q, want %q", GetCode(err), CodeBucketVersion)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-StoreError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryWrite, CodeInvalidIndexType, "bad type")
	detailed := err.WithDetails(map[string]interface{}{"field": "indexed_field_string_1"})

	if detailed.Details["field"] != "indexed_field_string_1" {
		t.Error("WithDetails should set details")
	}
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewValidationError(CodeInvalidSchema, "bad schema", nil)
	if v.Category != ErrCategoryValidation || v.Code != CodeInvalidSchema {
		t.Error("NewValidationError mismatch")
	}

	b := NewBucketError(CodeBucketNotFound, "missing", cause)
	if b.Category != ErrCategoryBucket || !errors.Is(b, cause) {
		t.Error("NewBucketError mismatch")
	}

	w := NewWriteError(CodeUniqueAttribute, "dup", nil)
	if w.Category != ErrCategoryWrite {
		t.Error("NewWriteError mismatch")
	}

	r := NewReindexError(CodeReindexFailed, "failed", cause)
	if r.Category != ErrCategoryReindex {
		t.Error("NewReindexError mismatch")
	}

	tr := NewTransportError(CodeTimeout, "deadline", cause)
	if tr.Category != ErrCategoryTransport || !tr.Retryable {
		t.Error("NewTransportError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
