// =============================================================================
// pouch-ops - Catalog Pricing Resolver
// =============================================================================
//
// This module answers "what does this pouch cost?" for the storefront's
// configurator and the sales team. A pouch configuration is a triple:
//
//   shape -> size -> quantity -> batch price (USD)
//
// The table is sparse: not every shape is made in every size, and some
// shapes have a minimum run. Lookups outside the table return ok=false rather
// than a zero price, so "free" can never be confused with "not offered".
//
// The built-in table is embedded from catalog.yaml and parsed once. A Catalog
// is immutable after construction and safe for concurrent readers.
//
// =============================================================================

package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownShape is returned for a shape outside the closed Shape set.
	ErrUnknownShape = errors.New("unknown pouch shape")

	// ErrUnknownSize is returned for a size id outside the preset set.
	ErrUnknownSize = errors.New("unknown pouch size")

	// ErrUnavailable is returned by Quote for a valid configuration that is
	// not in the price table.
	ErrUnavailable = errors.New("configuration not available")
)

// =============================================================================
// SHAPES
// =============================================================================

// Shape is a pouch construction.
type Shape string

const (
	StandUp             Shape = "stand-up"
	StandUpZipper       Shape = "stand-up-zipper"
	ThreeSideSeal       Shape = "three-side-seal"
	ThreeSideSealZipper Shape = "three-side-seal-zipper"
	FlatBottomZipper    Shape = "flat-bottom-zipper"
)

// Shapes lists every shape in display order.
var Shapes = []Shape{StandUp, StandUpZipper, ThreeSideSeal, ThreeSideSealZipper, FlatBottomZipper}

// ParseShape validates a shape name. Matching ignores case and surrounding
// whitespace.
func ParseShape(s string) (Shape, error) {
	needle := Shape(strings.ToLower(strings.TrimSpace(s)))
	for _, shape := range Shapes {
		if shape == needle {
			return shape, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownShape, s)
}

// =============================================================================
// SIZES
// =============================================================================

// Size is a preset pouch size. GussetMM is 0 for sizes without a gusset; it
// is ignored for flat (three-side-seal) shapes.
type Size struct {
	ID       string
	WidthMM  int
	HeightMM int
	GussetMM int
	Metric   string
	Imperial string
}

// Sizes lists every preset in display order.
var Sizes = []Size{
	{ID: "xs", WidthMM: 85, HeightMM: 130, GussetMM: 50, Metric: "85 x 130 + 50 mm", Imperial: `3.3" x 5.1" + 2.0"`},
	{ID: "s", WidthMM: 100, HeightMM: 150, GussetMM: 60, Metric: "100 x 150 + 60 mm", Imperial: `3.9" x 5.9" + 2.4"`},
	{ID: "m", WidthMM: 130, HeightMM: 200, GussetMM: 80, Metric: "130 x 200 + 80 mm", Imperial: `5.1" x 7.9" + 3.1"`},
	{ID: "l", WidthMM: 160, HeightMM: 240, GussetMM: 90, Metric: "160 x 240 + 90 mm", Imperial: `6.3" x 9.4" + 3.5"`},
	{ID: "xl", WidthMM: 200, HeightMM: 300, GussetMM: 110, Metric: "200 x 300 + 110 mm", Imperial: `7.9" x 11.8" + 4.3"`},
}

// ParseSize looks up a preset by id, ignoring case.
func ParseSize(id string) (Size, error) {
	needle := strings.ToLower(strings.TrimSpace(id))
	for _, size := range Sizes {
		if size.ID == needle {
			return size, nil
		}
	}
	return Size{}, fmt.Errorf("%w: %q", ErrUnknownSize, id)
}

func sizeIndex(id string) int {
	for i, size := range Sizes {
		if size.ID == id {
			return i
		}
	}
	return len(Sizes)
}

func shapeIndex(shape Shape) int {
	for i, s := range Shapes {
		if s == shape {
			return i
		}
	}
	return len(Shapes)
}

// =============================================================================
// QUANTITIES
// =============================================================================

var breakpoints = []int{100, 250, 500, 1000, 2000, 5000, 10000, 20000}

// Quantities returns the orderable batch sizes, ascending.
func Quantities() []int {
	return append([]int(nil), breakpoints...)
}

// IsBreakpoint reports whether qty is an orderable batch size.
func IsBreakpoint(qty int) bool {
	i := sort.SearchInts(breakpoints, qty)
	return i < len(breakpoints) && breakpoints[i] == qty
}

// =============================================================================
// PRICES
// =============================================================================

// Price is the USD total for a batch.
type Price struct {
	Total    decimal.Decimal
	Quantity int
}

// Unit returns the per-pouch price rounded to 4 places.
func (p Price) Unit() decimal.Decimal {
	if p.Quantity <= 0 {
		return decimal.Zero
	}
	return p.Total.Div(decimal.NewFromInt(int64(p.Quantity))).Round(4)
}

// DefaultImageURL is shown for shapes without their own product image.
const DefaultImageURL = "https://cdn.pouchops.com/products/default-pouch.jpg"

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is an immutable price table with product imagery.
type Catalog struct {
	prices map[Shape]map[string]map[int]decimal.Decimal
	images map[Shape]string
}

func newCatalog() *Catalog {
	return &Catalog{
		prices: make(map[Shape]map[string]map[int]decimal.Decimal),
		images: make(map[Shape]string),
	}
}

// set validates and records one price. Only used while building a Catalog.
func (c *Catalog) set(shape, size string, qty int, total decimal.Decimal) error {
	s, err := ParseShape(shape)
	if err != nil {
		return err
	}
	sz, err := ParseSize(size)
	if err != nil {
		return err
	}
	if !IsBreakpoint(qty) {
		return fmt.Errorf("quantity %d is not an orderable batch size", qty)
	}
	if !total.IsPositive() {
		return fmt.Errorf("price for %s/%s/%d must be positive", s, sz.ID, qty)
	}

	bySize, ok := c.prices[s]
	if !ok {
		bySize = make(map[string]map[int]decimal.Decimal)
		c.prices[s] = bySize
	}
	byQty, ok := bySize[sz.ID]
	if !ok {
		byQty = make(map[int]decimal.Decimal)
		bySize[sz.ID] = byQty
	}
	byQty[qty] = total
	return nil
}

func (c *Catalog) setImage(shape, url string) error {
	s, err := ParseShape(shape)
	if err != nil {
		return err
	}
	if url = strings.TrimSpace(url); url != "" {
		c.images[s] = url
	}
	return nil
}

// Price returns the batch price for a configuration. ok is false when any of
// shape, size or quantity is not in the table.
func (c *Catalog) Price(shape Shape, size string, qty int) (Price, bool) {
	total, ok := c.prices[shape][size][qty]
	if !ok {
		return Price{}, false
	}
	return Price{Total: total, Quantity: qty}, true
}

// ProductImage returns the image URL for shape, or DefaultImageURL.
func (c *Catalog) ProductImage(shape Shape) string {
	if url, ok := c.images[shape]; ok {
		return url
	}
	return DefaultImageURL
}

// Quote is a priced configuration with everything the storefront displays.
type Quote struct {
	Shape    Shape
	Size     Size
	Quantity int
	Total    decimal.Decimal
	Unit     decimal.Decimal
	ImageURL string
}

// Quote validates the inputs and prices them.
//
// RETURNS:
//   - ErrUnknownShape or ErrUnknownSize (wrapped) for input outside the
//     closed sets.
//   - ErrUnavailable (wrapped) for a valid configuration that is not offered.
func (c *Catalog) Quote(shape, size string, qty int) (Quote, error) {
	s, err := ParseShape(shape)
	if err != nil {
		return Quote{}, err
	}
	sz, err := ParseSize(size)
	if err != nil {
		return Quote{}, err
	}

	price, ok := c.Price(s, sz.ID, qty)
	if !ok {
		return Quote{}, fmt.Errorf("%w: %s %s x %d", ErrUnavailable, s, sz.ID, qty)
	}

	return Quote{
		Shape:    s,
		Size:     sz,
		Quantity: qty,
		Total:    price.Total,
		Unit:     price.Unit(),
		ImageURL: c.ProductImage(s),
	}, nil
}

// Entry is one row of the price table.
type Entry struct {
	Shape    Shape
	Size     string
	Quantity int
	Total    decimal.Decimal
}

// Entries lists the table ordered by shape, size and quantity.
func (c *Catalog) Entries() []Entry {
	var entries []Entry
	for shape, bySize := range c.prices {
		for size, byQty := range bySize {
			for qty, total := range byQty {
				entries = append(entries, Entry{Shape: shape, Size: size, Quantity: qty, Total: total})
			}
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Shape != b.Shape {
			return shapeIndex(a.Shape) < shapeIndex(b.Shape)
		}
		if a.Size != b.Size {
			return sizeIndex(a.Size) < sizeIndex(b.Size)
		}
		return a.Quantity < b.Quantity
	})
	return entries
}

// Images returns a copy of the shape -> image URL table.
func (c *Catalog) Images() map[Shape]string {
	out := make(map[Shape]string, len(c.images))
	for k, v := range c.images {
		out[k] = v
	}
	return out
}

// =============================================================================
// LOADING
// =============================================================================

//go:embed catalog.yaml
var catalogYAML []byte

var defaultCatalog = sync.OnceValues(func() (*Catalog, error) {
	return Parse(catalogYAML)
})

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return defaultCatalog()
}

// yamlCatalog is the on-disk layout of catalog.yaml.
type yamlCatalog struct {
	Shapes map[string]struct {
		Image  string                    `yaml:"image"`
		Prices map[string]map[int]string `yaml:"prices"`
	} `yaml:"shapes"`
}

// Parse builds a Catalog from YAML in the catalog.yaml layout.
func Parse(data []byte) (*Catalog, error) {
	var raw yamlCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	c := newCatalog()
	for shape, def := range raw.Shapes {
		if err := c.setImage(shape, def.Image); err != nil {
			return nil, err
		}
		for size, byQty := range def.Prices {
			for qty, value := range byQty {
				total, err := decimal.NewFromString(strings.TrimSpace(value))
				if err != nil {
					return nil, fmt.Errorf("invalid price for %s/%s/%d: %w", shape, size, qty, err)
				}
				if err := c.set(shape, size, qty, total); err != nil {
					return nil, err
				}
			}
		}
	}
	return c, nil
}

// Load returns the catalog at path: an XLSX price sheet, a YAML table, or the
// built-in catalog when path is empty.
func Load(path string) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		if path == "" {
			return Default()
		}
	case ".xlsx":
		return LoadSheet(path)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog file: %w", err)
		}
		return Parse(data)
	}
	return nil, fmt.Errorf("unsupported catalog file %s: use .xlsx or .yaml", path)
}
