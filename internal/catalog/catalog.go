// Package catalog serves package and title definitions from JSON files.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/ErlanBelekov/catalog-access/internal/domain"
)

const (
	titlesFile   = "titles.json"
	packagesFile = "packages.json"

	defaultAudioPath = "/AUDIOS/"
)

// Response is the catalog payload served to clients for one package.
type Response struct {
	Path   string                     `json:"PATH_AUDIOS"`
	Titles map[string]json.RawMessage `json:"AUDIOS"`
}

type snapshot struct {
	audioPath string
	titles    map[string]json.RawMessage
	packages  []domain.PackageDefinition
}

// FileCatalog is an in-memory copy of the catalog directory.
// Reload swaps the whole snapshot so readers never see a partial catalog.
type FileCatalog struct {
	dir string

	mu   sync.RWMutex
	snap *snapshot
	err  error
}

// New loads dir. On failure the catalog is still returned and answers every
// lookup with domain.ErrCatalogUnavailable until a Reload succeeds.
func New(dir string) (*FileCatalog, error) {
	c := &FileCatalog{dir: dir}
	return c, c.Reload()
}

func (c *FileCatalog) Reload() error {
	snap, err := load(c.dir)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if c.snap == nil {
			c.err = err
		}
		return err
	}
	c.snap = snap
	c.err = nil
	return nil
}

func (c *FileCatalog) current() (*snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap == nil {
		if c.err != nil {
			return nil, c.err
		}
		return nil, domain.ErrCatalogUnavailable
	}
	return c.snap, nil
}

// Ready reports whether a catalog snapshot is loaded.
func (c *FileCatalog) Ready() error {
	_, err := c.current()
	return err
}

func (c *FileCatalog) ListPackages() ([]domain.PackageDefinition, error) {
	snap, err := c.current()
	if err != nil {
		return nil, err
	}
	out := make([]domain.PackageDefinition, len(snap.packages))
	copy(out, snap.packages)
	return out, nil
}

func (c *FileCatalog) Resolve(packageID string) (domain.PackageDefinition, error) {
	snap, err := c.current()
	if err != nil {
		return domain.PackageDefinition{}, err
	}
	for _, p := range snap.packages {
		if p.ID == packageID {
			return p, nil
		}
	}
	return domain.PackageDefinition{}, domain.ErrPackageNotFound
}

func (c *FileCatalog) FreePackage() (domain.PackageDefinition, error) {
	snap, err := c.current()
	if err != nil {
		return domain.PackageDefinition{}, err
	}
	for _, p := range snap.packages {
		if p.IsFree {
			return p, nil
		}
	}
	return domain.PackageDefinition{}, fmt.Errorf("%w: no free package defined", domain.ErrCatalogUnavailable)
}

// Build resolves the titles referenced by pkg. A package that references an
// unknown title is a configuration error.
func (c *FileCatalog) Build(pkg domain.PackageDefinition) (*Response, error) {
	snap, err := c.current()
	if err != nil {
		return nil, err
	}

	titles := make(map[string]json.RawMessage, len(pkg.TitleIDs))
	var missing []string
	for _, id := range pkg.TitleIDs {
		t, ok := snap.titles[id]
		if !ok {
			missing = append(missing, id)
			continue
		}
		titles[id] = t
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: package %s references unknown titles: %s",
			domain.ErrCatalogUnavailable, pkg.ID, strings.Join(missing, ", "))
	}
	return &Response{Path: snap.audioPath, Titles: titles}, nil
}

// LookupMaps returns Stripe product id → package id and price id → package id.
func (c *FileCatalog) LookupMaps() (products, prices map[string]string, err error) {
	snap, err := c.current()
	if err != nil {
		return nil, nil, err
	}
	products = make(map[string]string)
	prices = make(map[string]string)
	for _, p := range snap.packages {
		if p.StripeProductID != "" {
			products[p.StripeProductID] = p.ID
		}
		if p.StripePriceID != "" {
			prices[p.StripePriceID] = p.ID
		}
	}
	return products, prices, nil
}

// ValidateIDs returns the ids that are not defined in the catalog, sorted.
func (c *FileCatalog) ValidateIDs(ids []string) ([]string, error) {
	snap, err := c.current()
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(snap.packages))
	for _, p := range snap.packages {
		known[p.ID] = struct{}{}
	}
	var unknown []string
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	sort.Strings(unknown)
	return unknown, nil
}

type titlesDoc struct {
	Titles     map[string]json.RawMessage `json:"titles"`
	Audios     map[string]json.RawMessage `json:"AUDIOS"`
	PathAudios string                     `json:"path_audios"`
	PathUpper  string                     `json:"PATH_AUDIOS"`
}

type packagesDoc struct {
	Packages []domain.PackageDefinition `json:"packages"`
}

func load(dir string) (*snapshot, error) {
	var td titlesDoc
	if err := readJSON(filepath.Join(dir, titlesFile), &td); err != nil {
		return nil, err
	}
	titles := td.Titles
	if titles == nil {
		titles = td.Audios
	}
	if titles == nil {
		return nil, fmt.Errorf("%w: invalid %s: missing 'titles' map", domain.ErrCatalogUnavailable, titlesFile)
	}
	path := td.PathAudios
	if path == "" {
		path = td.PathUpper
	}
	if path == "" {
		path = defaultAudioPath
	}

	var pd packagesDoc
	if err := readJSON(filepath.Join(dir, packagesFile), &pd); err != nil {
		return nil, err
	}
	if pd.Packages == nil {
		return nil, fmt.Errorf("%w: invalid %s: missing 'packages' list", domain.ErrCatalogUnavailable, packagesFile)
	}

	return &snapshot{audioPath: path, titles: titles, packages: pd.Packages}, nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: missing catalog file: %s", domain.ErrCatalogUnavailable, filepath.Base(path))
		}
		return fmt.Errorf("%w: read %s: %v", domain.ErrCatalogUnavailable, filepath.Base(path), err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: parse %s: %v", domain.ErrCatalogUnavailable, filepath.Base(path), err)
	}
	return nil
}
