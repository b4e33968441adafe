package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/makerhaus/inventree-gateway/internal/http/openapi"
)

// NewRouter registers HTTP routes and returns the handler with middleware.
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()
	r.Use(WithRequestID)
	r.Use(WithLogging)
	// The frontend is a kiosk/scanner app served from a different origin.
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Post("/take-item", app.takeItemHandler)
	r.Post("/add-item", app.addItemHandler)
	r.Post("/set-item", app.setItemHandler)
	r.Post("/get-item-from-qr", app.getItemFromQRHandler)
	r.Post("/get-item-name", app.getItemNameHandler)
	r.Get("/items/{id}", app.getItemHandler)

	r.Post("/parts", app.createPartHandler)
	r.Post("/parts/{id}/image", app.uploadPartImageHandler)
	r.Post("/stock", app.createStockItemHandler)
	r.Get("/categories", app.listCategoriesHandler)
	r.Post("/categories", app.createCategoryHandler)
	r.Get("/locations", app.listLocationsHandler)
	r.Post("/locations", app.createLocationHandler)

	r.Get("/image-proxy/*", app.imageProxyHandler)

	r.Get("/healthz", app.healthHandler)
	r.Get("/openapi.yaml", app.openapiHandler)
	r.Get("/docs", app.docsHandler)

	return r
}

func (a *App) openapiHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(openapi.YAML)
}

func (a *App) docsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>InvenTree Gateway API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    </script>
  </body>
</html>`
	_, _ = w.Write([]byte(html))
}
