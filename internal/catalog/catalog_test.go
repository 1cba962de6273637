package catalog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ErlanBelekov/catalog-access/internal/catalog"
	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

func newTestCatalog(t *testing.T) *catalog.FileCatalog {
	t.Helper()
	c, err := catalog.New("testdata")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	return c
}

func TestResolve_KnownAndUnknown(t *testing.T) {
	c := newTestCatalog(t)

	p, err := c.Resolve("pack-2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.StripePriceID != "price_pack2" {
		t.Errorf("price id = %q, want price_pack2", p.StripePriceID)
	}

	if _, err := c.Resolve("nope"); !errors.Is(err, domain.ErrPackageNotFound) {
		t.Errorf("want ErrPackageNotFound, got %v", err)
	}
}

func TestBuild_ReturnsReferencedTitles(t *testing.T) {
	c := newTestCatalog(t)
	p, _ := c.Resolve("audiobook-pack-1")

	resp, err := c.Build(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Path != "/media/audio/" {
		t.Errorf("path = %q", resp.Path)
	}
	if len(resp.Titles) != 2 {
		t.Errorf("got %d titles, want 2", len(resp.Titles))
	}
	if _, ok := resp.Titles["t-ch2"]; ok {
		t.Error("unreferenced title included")
	}
}

func TestBuild_UnknownTitleIsConfigError(t *testing.T) {
	c := newTestCatalog(t)

	_, err := c.Build(domain.PackageDefinition{ID: "broken", TitleIDs: []string{"t-missing"}})
	if !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Errorf("want ErrCatalogUnavailable, got %v", err)
	}
	if errors.Is(err, domain.ErrPackageNotFound) {
		t.Error("config error must not look like an unknown package")
	}
}

func TestFreePackage(t *testing.T) {
	p, err := newTestCatalog(t).FreePackage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.ID != "free" {
		t.Errorf("free package = %q", p.ID)
	}
}

func TestLookupMaps(t *testing.T) {
	products, prices, err := newTestCatalog(t).LookupMaps()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if products["prod_pack1"] != "audiobook-pack-1" {
		t.Errorf("products = %v", products)
	}
	if prices["price_pack2"] != "pack-2" {
		t.Errorf("prices = %v", prices)
	}
	if _, ok := products[""]; ok {
		t.Error("empty product id mapped")
	}
}

func TestValidateIDs(t *testing.T) {
	unknown, err := newTestCatalog(t).ValidateIDs([]string{"pack-2", "zzz", "aaa"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(unknown) != 2 || unknown[0] != "aaa" || unknown[1] != "zzz" {
		t.Errorf("unknown = %v", unknown)
	}
}

func TestNew_MissingDirIsUnavailable(t *testing.T) {
	c, err := catalog.New(t.TempDir())
	if !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Fatalf("want ErrCatalogUnavailable, got %v", err)
	}
	if _, err := c.ListPackages(); !errors.Is(err, domain.ErrCatalogUnavailable) {
		t.Errorf("lookups should fail until reload, got %v", err)
	}
}

func TestReload_KeepsPreviousSnapshotOnError(t *testing.T) {
	dir := t.TempDir()
	copyFile(t, "testdata/titles.json", filepath.Join(dir, "titles.json"))
	copyFile(t, "testdata/packages.json", filepath.Join(dir, "packages.json"))

	c, err := catalog.New(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "packages.json"), []byte("{broken"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := c.Reload(); err == nil {
		t.Fatal("expected reload error")
	}

	pkgs, err := c.ListPackages()
	if err != nil {
		t.Fatalf("previous snapshot lost: %v", err)
	}
	if len(pkgs) != 3 {
		t.Errorf("got %d packages, want 3", len(pkgs))
	}
}

func copyFile(t *testing.T, src, dst string) {
	t.Helper()
	b, err := os.ReadFile(src)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, b, 0o600); err != nil {
		t.Fatal(err)
	}
}
