package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/maplemarket/api/internal/domain"
)

func TestProductResolverDeduplicatesIDs(t *testing.T) {
	var requested []string
	repo := &stubProductRepository{
		findByIDsFunc: func(_ context.Context, ids []string) ([]domain.Product, error) {
			requested = ids
			return []domain.Product{
				{ID: "p1", Published: true},
				{ID: "p2", Published: true},
			}, nil
		},
	}
	resolver, err := NewProductResolver(ProductResolverDeps{Products: repo})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}

	resolved, err := resolver.Resolve(context.Background(), []string{"p1", " p2 ", "p1", "", "p2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(requested) != 2 {
		t.Fatalf("expected deduplicated batch of 2, got %v", requested)
	}
	if len(resolved) != 2 {
		t.Fatalf("expected 2 resolved products, got %d", len(resolved))
	}
}

func TestProductResolverFiltersUnpublished(t *testing.T) {
	repo := &stubProductRepository{
		findByIDsFunc: func(context.Context, []string) ([]domain.Product, error) {
			return []domain.Product{
				{ID: "p1", Published: true},
				{ID: "p2", Published: false},
			}, nil
		},
	}
	resolver, err := NewProductResolver(ProductResolverDeps{Products: repo})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}

	resolved, err := resolver.Resolve(context.Background(), []string{"p1", "p2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := resolved["p2"]; ok {
		t.Fatalf("expected unpublished product omitted")
	}
	if _, ok := resolved["p1"]; !ok {
		t.Fatalf("expected published product resolved")
	}
}

func TestProductResolverEmptyInput(t *testing.T) {
	repo := &stubProductRepository{
		findByIDsFunc: func(context.Context, []string) ([]domain.Product, error) {
			t.Fatalf("expected no repository call for empty input")
			return nil, nil
		},
	}
	resolver, err := NewProductResolver(ProductResolverDeps{Products: repo})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}

	resolved, err := resolver.Resolve(context.Background(), []string{"", "   "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("expected empty map, got %#v", resolved)
	}
}

func TestProductResolverPropagatesErrors(t *testing.T) {
	wantErr := errors.New("backend down")
	repo := &stubProductRepository{
		findByIDsFunc: func(context.Context, []string) ([]domain.Product, error) {
			return nil, wantErr
		},
	}
	resolver, err := NewProductResolver(ProductResolverDeps{Products: repo})
	if err != nil {
		t.Fatalf("failed to build resolver: %v", err)
	}

	if _, err := resolver.Resolve(context.Background(), []string{"p1"}); !errors.Is(err, wantErr) {
		t.Fatalf("expected repository error surfaced, got %v", err)
	}
}
