package render

import (
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed catalog.toml
var defaultCatalog string

// Entry is the human-readable explanation of one domain or category.
type Entry struct {
	Title    string   `toml:"title"`
	When     string   `toml:"when"`
	What     string   `toml:"what"`
	Why      string   `toml:"why"`
	Impact   string   `toml:"impact"`
	Examples []string `toml:"examples"`
	Fix      []string `toml:"fix"`
}

// Catalog maps canonical axis names to entries.
type Catalog struct {
	Domains    map[string]Entry `toml:"domain"`
	Categories map[string]Entry `toml:"category"`
}

// Domain returns the entry for a domain name.
func (c *Catalog) Domain(name string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.Domains[strings.ToUpper(name)]
	return e, ok
}

// Category returns the entry for a category name.
func (c *Catalog) Category(name string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	e, ok := c.Categories[strings.ToUpper(name)]
	return e, ok
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	defaultOnce.Do(func() {
		cat, err := LoadCatalog(strings.NewReader(defaultCatalog))
		if err != nil {
			panic(fmt.Sprintf("embedded catalog: %v", err))
		}
		defaultCat = cat
	})
	return defaultCat
}

// LoadCatalogFile reads a catalog from path.
func LoadCatalogFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	cat, err := LoadCatalog(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cat, nil
}

// LoadCatalog decodes a catalog. Unknown keys are an error so typos in
// field names do not silently drop text.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var cat Catalog
	meta, err := toml.NewDecoder(r).Decode(&cat)
	if err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("catalog: unknown keys %s", strings.Join(keys, ", "))
	}
	return &cat, nil
}
