package schema

// Primary (parent products) sheet columns, 0-based.
const (
	ProductColSKU          = 0
	ProductColName         = 1
	ProductColReadyForSale = 2
	ProductColShortDesc    = 3
	ProductColStockAdjust  = 6  // G
	ProductColStock        = 7  // H
	ProductColPrice        = 11 // L
)

// Variants sheet columns, 0-based.
const (
	VariantColParentSKU   = 0
	VariantColSKU         = 1
	VariantColName        = 2
	VariantColStockAdjust = 3 // D
	VariantColStock       = 4 // E
	VariantColPrice       = 5 // F
)

// ReadyForSaleMarker is the only cell value treated as ready_for_sale=true.
const ReadyForSaleMarker = "Y"

// ClearedAdjustment is written back to an adjustment cell once its delta
// has been applied to the catalog.
const ClearedAdjustment = "0"
