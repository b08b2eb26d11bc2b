package memory_test

import (
	"context"
	"testing"

	"github.com/vladislavdragonenkov/florist/internal/domain"
	"github.com/vladislavdragonenkov/florist/internal/storage/memory"
)

func TestCatalog_GetProducts(t *testing.T) {
	catalog := memory.NewCatalog(domain.Product{ID: 1, Name: "Roses", PriceMinor: 10000, Currency: "HKD", Active: true})
	catalog.Put(domain.Product{ID: 2, Name: "Lilies", PriceMinor: 5000, Currency: "HKD", Active: true})

	products, err := catalog.GetProducts(context.Background(), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("get products failed: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d", len(products))
	}
	if _, ok := products[3]; ok {
		t.Fatal("unknown product must be absent")
	}
}
