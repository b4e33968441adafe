package stock

import "encoding/json"

// Envelope status values. Every public operation reports exactly one of the
// two; callers switch on this discriminant and nothing else.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// StockResult is the envelope returned by the add/remove/set operations.
type StockResult struct {
	Status           string   `json:"status"`
	ItemID           int      `json:"item_id"`
	Quantity         float64  `json:"quantity,omitempty"`
	PreviousQuantity *float64 `json:"previous_quantity,omitempty"`
	Message          string   `json:"message,omitempty"`
}

// ItemDetails merges a stock record with fields from its parent part. The
// part fields are pointers so a failed or skipped enrichment serialises as
// explicit nulls rather than zero values.
type ItemDetails struct {
	ID          int      `json:"id"`
	Quantity    float64  `json:"quantity"`
	Serial      string   `json:"serial,omitempty"`
	Location    *int     `json:"location"`
	Status      string   `json:"status"`
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Price       *float64 `json:"price"`
	Image       *string  `json:"image"`
}

// ItemResult is the envelope returned by the detail-aggregation operations.
type ItemResult struct {
	Status  string       `json:"status"`
	ItemID  int          `json:"item_id,omitempty"`
	QRID    string       `json:"qr_id,omitempty"`
	Item    *ItemDetails `json:"item,omitempty"`
	Message string       `json:"message,omitempty"`
}

// CreateResult is the envelope returned by the resource-creation operations.
// Exactly one of the resource fields is set on success, holding the upstream
// record as returned by InvenTree.
type CreateResult struct {
	Status    string          `json:"status"`
	Part      json.RawMessage `json:"part,omitempty"`
	StockItem json.RawMessage `json:"stock_item,omitempty"`
	Category  json.RawMessage `json:"category,omitempty"`
	Location  json.RawMessage `json:"location,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// NamedRef is the simplified projection used by the list operations.
type NamedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ListResult is the envelope returned by the list operations.
type ListResult struct {
	Status  string     `json:"status"`
	Items   []NamedRef `json:"items"`
	Message string     `json:"message,omitempty"`
}

// UploadResult is the envelope returned by UploadPartImage.
type UploadResult struct {
	Status  string `json:"status"`
	PartID  int    `json:"part_id"`
	Message string `json:"message,omitempty"`
}

// PartRequest carries the fields for creating a part. Optional references are
// pointers: InvenTree distinguishes an unset field from an explicit null, so
// nil fields are omitted from the upstream payload entirely.
type PartRequest struct {
	Name            string   `json:"name"`
	IPN             string   `json:"ipn"`
	Description     string   `json:"description"`
	Category        *int     `json:"category"`
	Units           string   `json:"units"`
	DefaultLocation *int     `json:"default_location"`
	DefaultSupplier *int     `json:"default_supplier"`
	Notes           string   `json:"notes"`
	Active          *bool    `json:"active"`
	Purchaseable    *bool    `json:"purchaseable"`
	MinimumStock    *float64 `json:"minimum_stock"`
}

// StockItemRequest carries the fields for creating a stock item.
type StockItemRequest struct {
	Part                  int      `json:"part"`
	Location              int      `json:"location"`
	Quantity              float64  `json:"quantity"`
	Notes                 string   `json:"notes"`
	Barcode               string   `json:"barcode"`
	PurchasePrice         *float64 `json:"purchase_price"`
	PurchasePriceCurrency *string  `json:"purchase_price_currency"`
}

// GroupRequest carries the fields for creating a category or location.
type GroupRequest struct {
	Name        string `json:"name"`
	Parent      *int   `json:"parent"`
	Description string `json:"description"`
}

// stockItem is the subset of an upstream stock record the gateway reads.
type stockItem struct {
	PK         int     `json:"pk"`
	Quantity   float64 `json:"quantity"`
	Serial     string  `json:"serial"`
	Location   *int    `json:"location"`
	StatusText string  `json:"status_text"`
	Part       int     `json:"part"`
}

// part is the subset of an upstream part record used for enrichment.
type part struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PricingMin  *float64 `json:"pricing_min"`
	Image       *string  `json:"image"`
}
