package sync

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

func pv(parent, sku string, stock int) schema.ProcessedVariant {
	return schema.ProcessedVariant{ParentSKU: parent, SKU: sku, StockCount: stock}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name string
		in   []schema.ProcessedVariant
		want map[string]int
	}{
		{"empty", nil, map[string]int{}},
		{"two children", []schema.ProcessedVariant{pv("P1", "V1", 4), pv("P1", "V2", 6)}, map[string]int{"P1": 10}},
		{"two parents", []schema.ProcessedVariant{pv("P1", "V1", 4), pv("P2", "V3", 1), pv("P1", "V2", 6)}, map[string]int{"P1": 10, "P2": 1}},
		{"negative stock", []schema.ProcessedVariant{pv("P1", "V1", -3), pv("P1", "V2", 2)}, map[string]int{"P1": -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.in))
		})
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	in := []schema.ProcessedVariant{pv("P1", "V1", 4), pv("P2", "V2", 7), pv("P1", "V3", 6), pv("P3", "V4", 0)}
	want := Aggregate(in)

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]schema.ProcessedVariant(nil), in...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		assert.Equal(t, want, Aggregate(shuffled))
	}
}
