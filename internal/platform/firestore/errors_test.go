package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/maplemarket/api/internal/repositories"
)

func TestWrapErrorNil(t *testing.T) {
	if err := WrapError("products.get", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapErrorContextPassthrough(t *testing.T) {
	if err := WrapError("products.get", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("products.get", context.DeadlineExceeded); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if err := WrapError("products.get", status.Error(codes.Canceled, "rpc canceled")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected grpc cancellation to map to context.Canceled, got %v", err)
	}
}

func TestWrapErrorCodeMapping(t *testing.T) {
	cases := []struct {
		name        string
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "not found", code: codes.NotFound, notFound: true},
		{name: "already exists", code: codes.AlreadyExists, conflict: true},
		{name: "failed precondition", code: codes.FailedPrecondition, conflict: true},
		{name: "aborted transaction", code: codes.Aborted, conflict: true},
		{name: "unavailable", code: codes.Unavailable, unavailable: true},
		{name: "resource exhausted", code: codes.ResourceExhausted, unavailable: true},
		{name: "internal", code: codes.Internal, unavailable: true},
		{name: "permission denied stays plain", code: codes.PermissionDenied},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := WrapError("carts.get", status.Error(tc.code, "backend failure"))

			var repoErr *Error
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected *Error, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound {
				t.Errorf("IsNotFound = %v, want %v", repoErr.IsNotFound(), tc.notFound)
			}
			if repoErr.IsConflict() != tc.conflict {
				t.Errorf("IsConflict = %v, want %v", repoErr.IsConflict(), tc.conflict)
			}
			if repoErr.IsUnavailable() != tc.unavailable {
				t.Errorf("IsUnavailable = %v, want %v", repoErr.IsUnavailable(), tc.unavailable)
			}
		})
	}
}

func TestWrapErrorPreservesExisting(t *testing.T) {
	original := NotFoundError("", errors.New("document missing"))

	wrapped := WrapError("discounts.findByCode", original)

	var repoErr *Error
	if !errors.As(wrapped, &repoErr) {
		t.Fatalf("expected *Error, got %T", wrapped)
	}
	if !repoErr.IsNotFound() {
		t.Error("expected not-found category to survive rewrapping")
	}
	if repoErr.Error() != "discounts.findByCode: document missing" {
		t.Errorf("unexpected message: %s", repoErr.Error())
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	inner := errors.New("write contention")
	err := ConflictError("discounts.create", inner)

	if err.Error() != "discounts.create: write contention" {
		t.Errorf("unexpected message: %s", err.Error())
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to expose the underlying error")
	}
}

func TestErrorSatisfiesRepositoryError(t *testing.T) {
	var repoErr repositories.RepositoryError = NotFoundError("products.get", errors.New("missing"))
	if !repoErr.IsNotFound() {
		t.Error("expected IsNotFound to be true")
	}
	if repoErr.IsConflict() || repoErr.IsUnavailable() {
		t.Error("expected other categories to be false")
	}
}
