// Package stock implements the gateway's inventory operations on top of the
// InvenTree client: quantity reconciliation, detail aggregation, barcode
// lookup, and resource creation. Every operation returns an envelope value
// with a status discriminant and never a Go error; transport failures are
// caught here, logged, and reported inside the envelope so HTTP handlers
// always have a well-formed response regardless of upstream health.
package stock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/makerhaus/inventree-gateway/internal/inventree"
)

// API is the part of the InvenTree client the operations layer depends on.
// It is an interface so tests can count and script upstream calls.
type API interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, payload, out any) error
	Patch(ctx context.Context, path string, payload, out any) error
	UploadFile(ctx context.Context, path string, data []byte, filename, contentType string, out any) error
}

// Service exposes the gateway's inventory operations.
type Service struct {
	api API
	log *slog.Logger
}

// NewService creates a Service backed by the given upstream API.
func NewService(log *slog.Logger, api API) *Service {
	return &Service{api: api, log: log}
}

// modifyStock posts a single-item adjustment batch to endpoint, which is
// either the add or the remove endpoint.
func (s *Service) modifyStock(ctx context.Context, endpoint string, itemID int, quantity float64, notes, verb string) StockResult {
	payload := map[string]any{
		"items": []map[string]any{{"pk": itemID, "quantity": quantity}},
		"notes": notes,
	}
	if err := s.api.Post(ctx, endpoint, payload, nil); err != nil {
		s.log.Error("stock_modify_failed", "action", verb, "item_id", itemID, "error", err)
		return StockResult{Status: StatusError, ItemID: itemID, Message: err.Error()}
	}
	return StockResult{Status: StatusOK, ItemID: itemID, Quantity: quantity}
}

// RemoveStock decrements the quantity of a stock item.
func (s *Service) RemoveStock(ctx context.Context, itemID int, quantity float64, notes string) StockResult {
	if notes == "" {
		notes = "Removed via API"
	}
	return s.modifyStock(ctx, "/stock/remove/", itemID, quantity, notes, "removing")
}

// AddStock increments the quantity of a stock item.
func (s *Service) AddStock(ctx context.Context, itemID int, quantity float64, notes string) StockResult {
	if notes == "" {
		notes = "Added via API"
	}
	return s.modifyStock(ctx, "/stock/add/", itemID, quantity, notes, "adding")
}

// SetStock brings a stock item to an absolute quantity by reading the current
// value and issuing the add or remove that covers the difference.
//
// The read and the write are two separate upstream calls with no transaction
// around them: InvenTree has no compare-and-swap primitive for stock
// adjustments, so two concurrent SetStock calls against the same item can
// both read the same baseline and the later write acts on stale data. This
// is an accepted limitation of the upstream API, demonstrated by
// TestSetStockStaleBaselineRace rather than masked with a lock.
func (s *Service) SetStock(ctx context.Context, itemID int, target float64, notes string) StockResult {
	if notes == "" {
		notes = "Stock set via API"
	}
	var item stockItem
	if err := s.api.Get(ctx, fmt.Sprintf("/stock/%d/", itemID), &item); err != nil {
		s.log.Error("stock_set_failed", "item_id", itemID, "error", err)
		return StockResult{Status: StatusError, ItemID: itemID, Message: err.Error()}
	}
	current := item.Quantity
	delta := target - current

	switch {
	case delta == 0:
		return StockResult{
			Status:  StatusOK,
			ItemID:  itemID,
			Message: "stock quantity already at target value",
		}
	case delta > 0:
		if res := s.modifyStock(ctx, "/stock/add/", itemID, delta, notes, "adding (set)"); res.Status != StatusOK {
			return res
		}
	default:
		if res := s.modifyStock(ctx, "/stock/remove/", itemID, -delta, notes, "removing (set)"); res.Status != StatusOK {
			return res
		}
	}
	return StockResult{
		Status:           StatusOK,
		ItemID:           itemID,
		Quantity:         target,
		PreviousQuantity: &current,
	}
}

// GetItemDetails fetches a stock record and enriches it with fields from its
// parent part. A failed part fetch degrades gracefully: the stock fields are
// still returned and the part fields stay null.
func (s *Service) GetItemDetails(ctx context.Context, itemID int) ItemResult {
	var item stockItem
	if err := s.api.Get(ctx, fmt.Sprintf("/stock/%d/", itemID), &item); err != nil {
		var ue *inventree.UpstreamError
		if errors.As(err, &ue) && ue.StatusCode == 404 {
			return ItemResult{Status: StatusError, ItemID: itemID, Message: "stock item not found"}
		}
		s.log.Error("item_details_failed", "item_id", itemID, "error", err)
		return ItemResult{Status: StatusError, ItemID: itemID, Message: "failed to fetch item details"}
	}
	if item.PK == 0 {
		return ItemResult{Status: StatusError, ItemID: itemID, Message: "stock item not found"}
	}

	details := ItemDetails{
		ID:       item.PK,
		Quantity: item.Quantity,
		Serial:   item.Serial,
		Location: item.Location,
		Status:   item.StatusText,
	}
	if item.Part != 0 {
		var p part
		if err := s.api.Get(ctx, fmt.Sprintf("/part/%d/", item.Part), &p); err != nil {
			s.log.Warn("part_fetch_failed", "part_id", item.Part, "error", err)
		} else {
			details.Name = &p.Name
			details.Description = &p.Description
			details.Price = p.PricingMin
			details.Image = p.Image
		}
	}
	return ItemResult{Status: StatusOK, Item: &details}
}

// GetStockFromQR resolves a scanned barcode to a stock item and returns its
// details.
func (s *Service) GetStockFromQR(ctx context.Context, code string) ItemResult {
	var resp struct {
		StockItem *struct {
			PK int `json:"pk"`
		} `json:"stockitem"`
	}
	if err := s.api.Post(ctx, "/barcode/", map[string]any{"barcode": code}, &resp); err != nil {
		s.log.Error("barcode_lookup_failed", "qr_id", code, "error", err)
		return ItemResult{Status: StatusError, QRID: code, Message: "barcode lookup failed: " + err.Error()}
	}
	if resp.StockItem == nil || resp.StockItem.PK == 0 {
		return ItemResult{Status: StatusError, QRID: code, Message: "no stock item found for this barcode"}
	}
	return s.GetItemDetails(ctx, resp.StockItem.PK)
}

// CreatePart creates a part in the upstream catalog. Optional fields that are
// nil are left out of the payload.
func (s *Service) CreatePart(ctx context.Context, req PartRequest) CreateResult {
	payload := map[string]any{
		"name":         req.Name,
		"IPN":          req.IPN,
		"description":  req.Description,
		"units":        req.Units,
		"notes":        req.Notes,
		"active":       boolOr(req.Active, true),
		"purchaseable": boolOr(req.Purchaseable, true),
	}
	if req.Category != nil {
		payload["category"] = *req.Category
	}
	if req.DefaultLocation != nil {
		payload["default_location"] = *req.DefaultLocation
	}
	if req.DefaultSupplier != nil {
		payload["default_supplier"] = *req.DefaultSupplier
	}
	if req.MinimumStock != nil {
		payload["minimum_stock"] = *req.MinimumStock
	}

	raw, err := s.createResource(ctx, "/part/", payload)
	if err != nil {
		s.log.Error("part_create_failed", "name", req.Name, "error", err)
		return CreateResult{Status: StatusError, Message: err.Error()}
	}
	return CreateResult{Status: StatusOK, Part: raw}
}

// CreateStockItem creates a stock item for an existing part. An empty barcode
// means "no barcode", not a barcode with an empty value.
func (s *Service) CreateStockItem(ctx context.Context, req StockItemRequest) CreateResult {
	payload := map[string]any{
		"part":     req.Part,
		"location": req.Location,
		"quantity": req.Quantity,
		"notes":    req.Notes,
	}
	if req.Barcode != "" {
		payload["barcode"] = req.Barcode
	}
	if req.PurchasePrice != nil {
		payload["purchase_price"] = *req.PurchasePrice
	}
	if req.PurchasePriceCurrency != nil {
		payload["purchase_price_currency"] = *req.PurchasePriceCurrency
	}

	raw, err := s.createResource(ctx, "/stock/", payload)
	if err != nil {
		s.log.Error("stock_item_create_failed", "part", req.Part, "error", err)
		return CreateResult{Status: StatusError, Message: err.Error()}
	}
	return CreateResult{Status: StatusOK, StockItem: raw}
}

// CreateCategory creates a part category.
func (s *Service) CreateCategory(ctx context.Context, req GroupRequest) CreateResult {
	raw, err := s.createResource(ctx, "/part/category/", groupPayload(req))
	if err != nil {
		s.log.Error("category_create_failed", "name", req.Name, "error", err)
		return CreateResult{Status: StatusError, Message: err.Error()}
	}
	return CreateResult{Status: StatusOK, Category: raw}
}

// CreateLocation creates a stock location.
func (s *Service) CreateLocation(ctx context.Context, req GroupRequest) CreateResult {
	raw, err := s.createResource(ctx, "/stock/location/", groupPayload(req))
	if err != nil {
		s.log.Error("location_create_failed", "name", req.Name, "error", err)
		return CreateResult{Status: StatusError, Message: err.Error()}
	}
	return CreateResult{Status: StatusOK, Location: raw}
}

func groupPayload(req GroupRequest) map[string]any {
	payload := map[string]any{
		"name":        req.Name,
		"description": req.Description,
	}
	if req.Parent != nil {
		payload["parent"] = *req.Parent
	}
	return payload
}

func (s *Service) createResource(ctx context.Context, path string, payload map[string]any) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := s.api.Post(ctx, path, payload, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// ListCategories returns {id, name} projections of the part categories,
// optionally restricted to the children of parent.
func (s *Service) ListCategories(ctx context.Context, parent *int) ListResult {
	return s.listGroups(ctx, "/part/category/", parent)
}

// ListLocations returns {id, name} projections of the stock locations,
// optionally restricted to the children of parent.
func (s *Service) ListLocations(ctx context.Context, parent *int) ListResult {
	return s.listGroups(ctx, "/stock/location/", parent)
}

func (s *Service) listGroups(ctx context.Context, path string, parent *int) ListResult {
	if parent != nil {
		path = fmt.Sprintf("%s?parent=%d", path, *parent)
	}
	var rows []struct {
		PK   int    `json:"pk"`
		Name string `json:"name"`
	}
	if err := s.api.Get(ctx, path, &rows); err != nil {
		s.log.Error("list_failed", "path", path, "error", err)
		return ListResult{Status: StatusError, Message: err.Error()}
	}
	items := make([]NamedRef, 0, len(rows))
	for _, row := range rows {
		items = append(items, NamedRef{ID: row.PK, Name: row.Name})
	}
	return ListResult{Status: StatusOK, Items: items}
}

// UploadPartImage forwards an already-validated image to the upstream part
// record. Content-type and size validation happens in the HTTP layer before
// any upstream traffic.
func (s *Service) UploadPartImage(ctx context.Context, partID int, data []byte, filename, contentType string) UploadResult {
	if err := s.api.UploadFile(ctx, fmt.Sprintf("/part/%d/", partID), data, filename, contentType, nil); err != nil {
		s.log.Error("image_upload_failed", "part_id", partID, "error", err)
		return UploadResult{Status: StatusError, PartID: partID, Message: err.Error()}
	}
	return UploadResult{Status: StatusOK, PartID: partID, Message: "image uploaded successfully"}
}

func boolOr(v *bool, def bool) bool {
	if v != nil {
		return *v
	}
	return def
}
