package dataset

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func testCatalog(t *testing.T) (*Catalog, string) {
	t.Helper()
	root := t.TempDir()
	return NewCatalog(root, "main", []string{"main", "alt"}), root
}

func TestVariantValidation(t *testing.T) {
	c, _ := testCatalog(t)

	if c.Default() != "main" {
		t.Fatalf("wrong default: %q", c.Default())
	}
	if !c.Valid("main") || !c.Valid("alt") {
		t.Fatal("configured variants rejected")
	}
	if c.Valid("evil") || c.Valid("../../etc") {
		t.Fatal("unknown variant accepted")
	}

	variants := c.Variants()
	if len(variants) != 2 || variants[0] != "alt" || variants[1] != "main" {
		t.Fatalf("expected sorted [alt main], got %v", variants)
	}
}

func TestClusters(t *testing.T) {
	c, root := testCatalog(t)
	writeFile(t, filepath.Join(root, "main", "clusters.json"),
		`{"1":"Astro","2":"Oligo","bogus":"skipped"}`)

	m, err := c.Clusters("main")
	if err != nil {
		t.Fatalf("Clusters failed: %v", err)
	}
	if len(m) != 2 || m[1] != "Astro" || m[2] != "Oligo" {
		t.Fatalf("unexpected cluster table: %v", m)
	}

	// Cached after the first read.
	m2, _ := c.Clusters("main")
	if len(m2) != len(m) {
		t.Fatal("cached lookup differs")
	}
}

func TestClustersMissingFile(t *testing.T) {
	c, _ := testCatalog(t)
	m, err := c.Clusters("alt")
	if err != nil {
		t.Fatalf("missing clusters file should not error, got %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("expected empty table, got %v", m)
	}
}

func TestPalette(t *testing.T) {
	c, root := testCatalog(t)
	writeFile(t, filepath.Join(root, "main", "palette.json"), `{"Astro":"#ff0000"}`)

	p, err := c.Palette("main")
	if err != nil {
		t.Fatalf("Palette failed: %v", err)
	}
	if p.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", p.Len())
	}
}

func TestPaletteMissingFile(t *testing.T) {
	c, _ := testCatalog(t)
	p, err := c.Palette("alt")
	if err != nil {
		t.Fatalf("missing palette should degrade, got %v", err)
	}
	if p.Len() != 0 {
		t.Fatalf("expected empty palette, got %d entries", p.Len())
	}
}

func TestGenes(t *testing.T) {
	c, root := testCatalog(t)
	writeFile(t, filepath.Join(root, "main", "genes", "Slc17a7.json.gz"), "x")
	writeFile(t, filepath.Join(root, "main", "genes", "Gad1.json.gz"), "x")
	writeFile(t, filepath.Join(root, "main", "genes", "notes.txt"), "x")

	genes, err := c.Genes("main")
	if err != nil {
		t.Fatalf("Genes failed: %v", err)
	}
	if len(genes) != 2 || genes[0] != "Gad1" || genes[1] != "Slc17a7" {
		t.Fatalf("expected sorted [Gad1 Slc17a7], got %v", genes)
	}
}
