package ingest

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestParseInt(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"5", 5},
		{" -2 ", -2},
		{"+7", 7},
		{"12 pcs", 12},
		{"3.9", 3},
		{"abc", 0},
		{"-", 0},
		{"1e3", 1},
		{"99999999999999999999999", 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseInt(tt.in), "ParseInt(%q)", tt.in)
	}
}

func TestParsePrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "0"},
		{"12.5", "12.5"},
		{" 980 ", "980"},
		{"19.99 NTD", "19.99"},
		{".5", "0.5"},
		{"1.5e2", "150"},
		{"$12", "0"},
		{"-3", "0"},
		{"free", "0"},
	}
	for _, tt := range tests {
		got := ParsePrice(tt.in)
		assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "ParsePrice(%q) = %s, want %s", tt.in, got, tt.want)
	}
}

func TestParseProductRow(t *testing.T) {
	row := []string{" SKU1 ", "Widget ", "Y", " short ", "", "", "5", "100", "", "", "", "12.50"}
	got := ParseProductRow(row)

	assert.Equal(t, "SKU1", got.SKU)
	assert.Equal(t, "Widget", got.Name)
	assert.True(t, got.ReadyForSale)
	assert.Equal(t, "short", got.ShortDesc)
	assert.Equal(t, 5, got.StockAdjust)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("12.5")))
}

func TestParseProductRow_Ragged(t *testing.T) {
	got := ParseProductRow([]string{"SKU2", "Gadget", "y"})

	assert.Equal(t, "SKU2", got.SKU)
	assert.False(t, got.ReadyForSale, "only an exact Y marks ready_for_sale")
	assert.Equal(t, 0, got.StockAdjust)
	assert.True(t, got.Price.IsZero())

	empty := ParseProductRow(nil)
	assert.Equal(t, "", empty.SKU)
}

func TestParseVariantRow(t *testing.T) {
	got := ParseVariantRow([]string{"P1", "V1", "Red", "-3", "10", "0"})

	assert.Equal(t, "P1", got.ParentSKU)
	assert.Equal(t, "V1", got.SKU)
	assert.Equal(t, "Red", got.Name)
	assert.Equal(t, -3, got.StockAdjust)
	assert.True(t, got.InheritsPrice())
}

func TestCell(t *testing.T) {
	row := []string{" a ", "b"}
	assert.Equal(t, "a", Cell(row, 0))
	assert.Equal(t, "", Cell(row, 5))
	assert.Equal(t, "", Cell(row, -1))
}
