package catalog_test

import (
	"testing"

	"github.com/magpollo/site-backend/internal/catalog"
)

func TestServicesFixedAndOrdered(t *testing.T) {
	first := catalog.Services()
	second := catalog.Services()

	if len(first) != 6 {
		t.Fatalf("expected 6 services, got %d", len(first))
	}

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("catalog is not deterministic at index %d", i)
		}
		if first[i].ID != i+1 {
			t.Fatalf("expected stable id %d at index %d, got %d", i+1, i, first[i].ID)
		}
		if first[i].Title == "" || first[i].Description == "" {
			t.Fatalf("service %d has empty fields", first[i].ID)
		}
	}
}

func TestServicesReturnsCopy(t *testing.T) {
	mutated := catalog.Services()
	mutated[0].Title = "changed"

	if catalog.Services()[0].Title == "changed" {
		t.Fatal("mutating the returned slice must not affect the catalog")
	}
}

func TestLookups(t *testing.T) {
	svc, ok := catalog.ByID(6)
	if !ok || svc.Title != "Tech Consulting" {
		t.Fatalf("ByID(6) = %+v, %v", svc, ok)
	}

	svc, ok = catalog.ByTitle("Product Development")
	if !ok || svc.ID != 1 {
		t.Fatalf("ByTitle(Product Development) = %+v, %v", svc, ok)
	}

	if _, ok := catalog.ByID(99); ok {
		t.Fatal("expected miss for unknown id")
	}
	if _, ok := catalog.ByTitle("Nope"); ok {
		t.Fatal("expected miss for unknown title")
	}
}
