package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/makerhaus/inventree-gateway/internal/config"
	"github.com/makerhaus/inventree-gateway/internal/stock"
)

// maxUploadBytes bounds part image uploads before anything is forwarded
// upstream.
const maxUploadBytes = 10 << 20

// MediaStreamer streams raw files from the upstream media store.
type MediaStreamer interface {
	StreamMedia(ctx context.Context, path string) (*http.Response, error)
}

// App holds the gateway's HTTP dependencies.
type App struct {
	Cfg     config.Config
	Log     *slog.Logger
	Service *stock.Service
	Media   MediaStreamer
}

// NewApp wires the HTTP layer to the operations layer.
func NewApp(cfg config.Config, log *slog.Logger, svc *stock.Service, media MediaStreamer) *App {
	return &App{Cfg: cfg, Log: log, Service: svc, Media: media}
}

// stockOpRequest is the body of the take/add/set routes. Quantity is a
// pointer so "absent" (default 1 for take/add) is distinguishable from an
// explicit zero (a valid target for set).
type stockOpRequest struct {
	ItemID   int      `json:"item_id"`
	Quantity *float64 `json:"quantity"`
	Notes    string   `json:"notes"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (a *App) takeItemHandler(w http.ResponseWriter, r *http.Request) {
	var req stockOpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID <= 0 {
		WriteError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	qty := 1.0
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty <= 0 {
		WriteError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.RemoveStock(r.Context(), req.ItemID, qty, req.Notes))
}

func (a *App) addItemHandler(w http.ResponseWriter, r *http.Request) {
	var req stockOpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID <= 0 {
		WriteError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	qty := 1.0
	if req.Quantity != nil {
		qty = *req.Quantity
	}
	if qty <= 0 {
		WriteError(w, http.StatusBadRequest, "quantity must be positive")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.AddStock(r.Context(), req.ItemID, qty, req.Notes))
}

func (a *App) setItemHandler(w http.ResponseWriter, r *http.Request) {
	var req stockOpRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID <= 0 {
		WriteError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	if req.Quantity == nil {
		WriteError(w, http.StatusBadRequest, "quantity is required")
		return
	}
	if *req.Quantity < 0 {
		WriteError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.SetStock(r.Context(), req.ItemID, *req.Quantity, req.Notes))
}

func (a *App) getItemFromQRHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		QRID string `json:"qr_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.QRID == "" {
		WriteError(w, http.StatusBadRequest, "qr_id is required")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.GetStockFromQR(r.Context(), req.QRID))
}

func (a *App) getItemNameHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ItemID int `json:"item_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.ItemID <= 0 {
		WriteError(w, http.StatusBadRequest, "item_id is required")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.GetItemDetails(r.Context(), req.ItemID))
}

func (a *App) getItemHandler(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid item id")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.GetItemDetails(r.Context(), id))
}

func (a *App) createPartHandler(w http.ResponseWriter, r *http.Request) {
	var req stock.PartRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.IPN == "" {
		WriteError(w, http.StatusBadRequest, "ipn is required")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.CreatePart(r.Context(), req))
}

func (a *App) createStockItemHandler(w http.ResponseWriter, r *http.Request) {
	var req stock.StockItemRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Part <= 0 {
		WriteError(w, http.StatusBadRequest, "part is required")
		return
	}
	if req.Location <= 0 {
		WriteError(w, http.StatusBadRequest, "location is required")
		return
	}
	if req.Quantity < 0 {
		WriteError(w, http.StatusBadRequest, "quantity must not be negative")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.CreateStockItem(r.Context(), req))
}

func (a *App) createCategoryHandler(w http.ResponseWriter, r *http.Request) {
	var req stock.GroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.CreateCategory(r.Context(), req))
}

func (a *App) createLocationHandler(w http.ResponseWriter, r *http.Request) {
	var req stock.GroupRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, "name is required")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.CreateLocation(r.Context(), req))
}

// parentParam parses the optional parent query parameter. An empty string
// means "no filter", never parent zero.
func parentParam(r *http.Request) (*int, bool) {
	v := r.URL.Query().Get("parent")
	if v == "" {
		return nil, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, false
	}
	return &n, true
}

func (a *App) listCategoriesHandler(w http.ResponseWriter, r *http.Request) {
	parent, ok := parentParam(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "parent must be an integer")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.ListCategories(r.Context(), parent))
}

func (a *App) listLocationsHandler(w http.ResponseWriter, r *http.Request) {
	parent, ok := parentParam(r)
	if !ok {
		WriteError(w, http.StatusBadRequest, "parent must be an integer")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.ListLocations(r.Context(), parent))
}

func (a *App) uploadPartImageHandler(w http.ResponseWriter, r *http.Request) {
	partID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || partID <= 0 {
		WriteError(w, http.StatusBadRequest, "invalid part id")
		return
	}

	if r.ContentLength > maxUploadBytes+4096 {
		WriteError(w, http.StatusRequestEntityTooLarge, "image exceeds the 10 MiB limit")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+4096)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid multipart body: "+err.Error())
		return
	}
	file, hdr, err := r.FormFile("image")
	if err != nil {
		WriteError(w, http.StatusBadRequest, "image file field is required")
		return
	}
	defer file.Close()

	contentType := hdr.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		WriteError(w, http.StatusBadRequest, "only image/* uploads are accepted")
		return
	}
	if hdr.Size > maxUploadBytes {
		WriteError(w, http.StatusRequestEntityTooLarge, "image exceeds the 10 MiB limit")
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "cannot read uploaded file")
		return
	}
	WriteJSON(w, http.StatusOK, a.Service.UploadPartImage(r.Context(), partID, data, hdr.Filename, contentType))
}

// imageProxyHandler relays an upstream media file to the caller. The body is
// streamed, never buffered whole. InvenTree answers some failure modes (login
// redirects, missing auth) with an HTML page and a 200 status, so an HTML
// content type is mapped to 404 instead of being forwarded as image bytes.
func (a *App) imageProxyHandler(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		WriteError(w, http.StatusNotFound, "image path is required")
		return
	}
	resp, err := a.Media.StreamMedia(r.Context(), path)
	if err != nil {
		a.Log.Error("image_proxy_failed", "path", path, "error", err)
		WriteError(w, http.StatusBadGateway, "upstream media request failed")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		status := http.StatusNotFound
		if resp.StatusCode != http.StatusNotFound {
			status = http.StatusBadGateway
		}
		WriteError(w, status, "image not available")
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "text/html") {
		WriteError(w, http.StatusNotFound, "image not found")
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, resp.Body); err != nil {
		a.Log.Warn("image_proxy_stream_interrupted", "path", path, "error", err)
	}
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
