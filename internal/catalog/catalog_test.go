package catalog

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func defaultCatalogT(t *testing.T) *Catalog {
	t.Helper()
	c, err := Default()
	require.NoError(t, err)
	return c
}

func TestDefault_Price(t *testing.T) {
	c := defaultCatalogT(t)

	p, ok := c.Price(StandUp, "m", 500)
	require.True(t, ok)
	assert.Equal(t, "191.40", p.Total.StringFixed(2))
	assert.Equal(t, 500, p.Quantity)
	assert.Equal(t, "0.3828", p.Unit().String())
}

func TestDefault_EveryShapeHasAnImageAndPrices(t *testing.T) {
	c := defaultCatalogT(t)
	for _, shape := range Shapes {
		assert.NotEqual(t, DefaultImageURL, c.ProductImage(shape), shape)
		assert.NotEmpty(t, c.prices[shape], shape)
	}
}

func TestPrice_Unavailable(t *testing.T) {
	c := defaultCatalogT(t)

	tests := []struct {
		name  string
		shape Shape
		size  string
		qty   int
	}{
		{"unknown shape", Shape("gable-top"), "m", 500},
		{"unknown size", StandUp, "xxl", 500},
		{"size not made in shape", ThreeSideSeal, "xs", 500},
		{"below minimum run", FlatBottomZipper, "m", 100},
		{"quantity between breakpoints", StandUp, "m", 750},
		{"zero quantity", StandUp, "m", 0},
		{"negative quantity", StandUp, "m", -100},
		{"empty everything", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := c.Price(tt.shape, tt.size, tt.qty)
			assert.False(t, ok)
			assert.True(t, p.Total.IsZero())
		})
	}
}

func TestProductImage_Fallback(t *testing.T) {
	c := defaultCatalogT(t)
	assert.Equal(t, DefaultImageURL, c.ProductImage("unknown-shape"))
	assert.Equal(t, DefaultImageURL, c.ProductImage(""))
}

func TestQuote(t *testing.T) {
	c := defaultCatalogT(t)

	q, err := c.Quote(" Stand-Up ", "M", 500)
	require.NoError(t, err)
	assert.Equal(t, StandUp, q.Shape)
	assert.Equal(t, 130, q.Size.WidthMM)
	assert.Equal(t, "191.4", q.Total.String())
	assert.Equal(t, c.ProductImage(StandUp), q.ImageURL)

	_, err = c.Quote("gable-top", "m", 500)
	assert.ErrorIs(t, err, ErrUnknownShape)

	_, err = c.Quote("stand-up", "xxl", 500)
	assert.ErrorIs(t, err, ErrUnknownSize)

	_, err = c.Quote("three-side-seal", "xs", 500)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestQuantities(t *testing.T) {
	q := Quantities()
	assert.Equal(t, []int{100, 250, 500, 1000, 2000, 5000, 10000, 20000}, q)

	q[0] = 1
	assert.Equal(t, 100, Quantities()[0], "callers get a copy")

	assert.True(t, IsBreakpoint(1000))
	assert.False(t, IsBreakpoint(999))
	assert.False(t, IsBreakpoint(30000))
}

func TestEntries_Ordered(t *testing.T) {
	entries := defaultCatalogT(t).Entries()
	require.NotEmpty(t, entries)

	assert.Equal(t, StandUp, entries[0].Shape)
	assert.Equal(t, "xs", entries[0].Size)
	assert.Equal(t, 100, entries[0].Quantity)

	last := entries[len(entries)-1]
	assert.Equal(t, FlatBottomZipper, last.Shape)
	assert.Equal(t, "xl", last.Size)
	assert.Equal(t, 20000, last.Quantity)
}

func TestParse_Rejects(t *testing.T) {
	tests := map[string]string{
		"unknown shape": "shapes:\n  gable-top:\n    prices:\n      m:\n        500: \"1\"\n",
		"unknown size":  "shapes:\n  stand-up:\n    prices:\n      xxl:\n        500: \"1\"\n",
		"bad quantity":  "shapes:\n  stand-up:\n    prices:\n      m:\n        750: \"1\"\n",
		"bad price":     "shapes:\n  stand-up:\n    prices:\n      m:\n        500: \"abc\"\n",
		"zero price":    "shapes:\n  stand-up:\n    prices:\n      m:\n        500: \"0\"\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestConcurrentReaders(t *testing.T) {
	c := defaultCatalogT(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, q := range Quantities() {
				c.Price(StandUpZipper, "l", q)
				c.ProductImage(StandUpZipper)
			}
		}()
	}
	wg.Wait()
}

func TestSheetRoundTrip(t *testing.T) {
	c := defaultCatalogT(t)
	path := filepath.Join(t.TempDir(), "prices.xlsx")

	require.NoError(t, WriteSheet(c, path))

	loaded, err := LoadSheet(path)
	require.NoError(t, err)

	want := c.Entries()
	got := loaded.Entries()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Shape, got[i].Shape)
		assert.Equal(t, want[i].Size, got[i].Size)
		assert.Equal(t, want[i].Quantity, got[i].Quantity)
		assert.True(t, want[i].Total.Equal(got[i].Total), "%v != %v", want[i].Total, got[i].Total)
	}
	assert.Equal(t, c.Images(), loaded.Images())

	viaLoad, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, viaLoad.Entries(), len(want))
}

func TestLoadSheet_RowError(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Prices"))
	require.NoError(t, f.SetSheetRow("Prices", "A1", &[]interface{}{"Shape", "Size", "Quantity", "Price"}))
	require.NoError(t, f.SetSheetRow("Prices", "A2", &[]interface{}{"stand-up", "m", 500, 12.5}))
	require.NoError(t, f.SetSheetRow("Prices", "A4", &[]interface{}{"stand-up", "m", 750, 12.5}))
	path := filepath.Join(t.TempDir(), "bad.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	_, err := LoadSheet(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 4")
}

func TestLoadSheet_PricesOnly(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetSheetName("Sheet1", "Prices"))
	require.NoError(t, f.SetSheetRow("Prices", "A1", &[]interface{}{"Shape", "Size", "Quantity", "Price"}))
	require.NoError(t, f.SetSheetRow("Prices", "A2", &[]interface{}{"stand-up", "m", "1,000", "1,250.00"}))
	path := filepath.Join(t.TempDir(), "prices.xlsx")
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	c, err := LoadSheet(path)
	require.NoError(t, err)

	p, ok := c.Price(StandUp, "m", 1000)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("1250").Equal(p.Total))
	assert.Equal(t, DefaultImageURL, c.ProductImage(StandUp))
}

func TestLoad(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Entries())

	path := filepath.Join(t.TempDir(), "prices.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shapes:\n  stand-up:\n    prices:\n      m:\n        500: \"99.50\"\n"), 0644))
	c, err = Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Entries(), 1)

	_, err = Load(filepath.Join(t.TempDir(), "prices.csv"))
	assert.Error(t, err)
}
