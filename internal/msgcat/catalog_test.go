package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmbeddedCatalogRenders(t *testing.T) {
	c, err := New("")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := c.Render("report.ban_header", map[string]any{"Count": 3})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "⛔ BAN (3)" {
		t.Fatalf("unexpected render %q", got)
	}
}

func TestMissingKeyAndFieldFallBack(t *testing.T) {
	c := MustDefault()
	if got := c.RenderOr("report.nope", nil, "fb"); got != "fb" {
		t.Fatalf("missing template should fall back, got %q", got)
	}
	if got := c.RenderOr("report.ban_header", map[string]any{}, "fb"); got != "fb" {
		t.Fatalf("missing field should fall back, got %q", got)
	}
	var nilCat *Catalog
	if got := nilCat.RenderOr("report.ban_header", nil, "fb"); got != "fb" {
		t.Fatalf("nil catalog should fall back, got %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.yaml"), []byte("report:\n  none: \"nothing\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.RenderOr("report.none", nil, ""); got != "nothing" {
		t.Fatalf("override not applied: %q", got)
	}
	if _, err := c.Render("errors.not_ready", nil); err != nil {
		t.Fatalf("embedded keys must survive overrides")
	}
}

func TestDuplicateOverrideKeys(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a.yaml", "b.yml"} {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("report:\n  none: x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := New(dir); err == nil {
		t.Fatalf("expected duplicate key error")
	}
}

func TestNonStringLeafRejected(t *testing.T) {
	if _, err := parseYAMLToFlat([]byte("a:\n  b: 3\n")); err == nil {
		t.Fatalf("expected error for int leaf")
	}
}
