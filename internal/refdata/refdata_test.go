package refdata

import (
	"os"
	"path/filepath"
	"testing"
)

func testCatalog() *Catalog {
	return New(
		[]District{
			{Name: "Central", State: "Andhra Pradesh"},
			{Name: "Gajuwaka", State: "Andhra Pradesh"},
			{Name: "Madhurawada", State: "Andhra Pradesh"},
		},
		[]Complaint{
			{Appliance: "AC", Text: "Not cooling"},
			{Appliance: "AC", Text: "Water leakage"},
			{Appliance: "Fridge", Text: "Not cooling"},
		},
	)
}

func TestResolveDistrict(t *testing.T) {
	c := testCatalog()

	name, ok := c.ResolveDistrict("central")
	if !ok || name != "Central" {
		t.Fatalf("ResolveDistrict(central) = %q, %v", name, ok)
	}
	name, ok = c.ResolveDistrict("Gajuwaka (Andhra Pradesh)")
	if !ok || name != "Gajuwaka" {
		t.Fatalf("ResolveDistrict(label) = %q, %v", name, ok)
	}
	if _, ok := c.ResolveDistrict("Atlantis"); ok {
		t.Fatal("ResolveDistrict(Atlantis) should fail")
	}
	if _, ok := c.ResolveDistrict("  "); ok {
		t.Fatal("ResolveDistrict(blank) should fail")
	}
}

func TestSuggestDistrictsOrdering(t *testing.T) {
	c := testCatalog()
	got := c.SuggestDistricts("madh", 5)
	if len(got) != 1 || got[0] != "Madhurawada (Andhra Pradesh)" {
		t.Fatalf("SuggestDistricts = %v", got)
	}
	if got := c.SuggestDistricts("xyz", 5); len(got) != 0 {
		t.Fatalf("expected no suggestions, got %v", got)
	}
}

func TestComplaintTypesFiltersByAppliance(t *testing.T) {
	c := testCatalog()
	ac := c.ComplaintTypes("AC")
	if len(ac) != 2 {
		t.Fatalf("ComplaintTypes(AC) = %v", ac)
	}
	fridge := c.ComplaintTypes("fridge")
	if len(fridge) != 1 || fridge[0] != "Not cooling" {
		t.Fatalf("ComplaintTypes(fridge) = %v", fridge)
	}
}

func TestSuggestComplaints(t *testing.T) {
	c := testCatalog()
	got := c.SuggestComplaints("AC", "cooling", 3)
	if len(got) != 1 || got[0] != "Not cooling" {
		t.Fatalf("SuggestComplaints = %v", got)
	}
}

func TestLoadFromFiles(t *testing.T) {
	dir := t.TempDir()
	dPath := filepath.Join(dir, "districts.yaml")
	cPath := filepath.Join(dir, "complaints.yaml")

	districts := "districts:\n  - district: Central\n    state: AP\n"
	complaints := "complaints:\n  - appliance: AC\n    complaint: Not cooling\n"
	if err := os.WriteFile(dPath, []byte(districts), 0o600); err != nil {
		t.Fatalf("write districts: %v", err)
	}
	if err := os.WriteFile(cPath, []byte(complaints), 0o600); err != nil {
		t.Fatalf("write complaints: %v", err)
	}

	cat, err := Load(dPath, cPath)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cat.IsDistrict("Central") {
		t.Fatal("expected Central to be a district")
	}
	if len(cat.ComplaintTypes("AC")) != 1 {
		t.Fatal("expected one AC complaint")
	}
}

func TestLoadRejectsEmptyDistricts(t *testing.T) {
	dir := t.TempDir()
	dPath := filepath.Join(dir, "districts.yaml")
	cPath := filepath.Join(dir, "complaints.yaml")
	if err := os.WriteFile(dPath, []byte("districts: []\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(cPath, []byte("complaints: []\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dPath, cPath); err == nil {
		t.Fatal("expected error for empty district catalog")
	}
}
