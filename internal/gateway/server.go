package gateway

import (
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Port string
}

// NewServer wires the REST routes, the WebSocket feed and the health
// endpoint into an HTTP/2-capable server.
func NewServer(cfg ServerConfig, handlers *Handlers, ws *WebSocketHandler, health http.HandlerFunc) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	registerRoutes(mux, handlers, ws, health)

	handler := RequestLogger(c.Handler(mux))

	port := cfg.Port
	if port == "" {
		port = "8080"
	}

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

func registerRoutes(mux *http.ServeMux, h *Handlers, ws *WebSocketHandler, health http.HandlerFunc) {
	auth := h.auth

	// Public surface
	mux.HandleFunc("POST /v1/accounts", h.CreateAccount)
	mux.HandleFunc("GET /v1/plugins", h.ListCatalog)
	mux.HandleFunc("GET /v1/plugins/{pluginID}", h.GetPlugin)
	if health != nil {
		mux.HandleFunc("GET /health", health)
	}

	// Account management
	mux.Handle("GET /v1/accounts/{accountID}", auth.RequireAuth(http.HandlerFunc(h.GetAccount)))
	mux.Handle("PUT /v1/accounts/{accountID}", auth.RequireAuth(http.HandlerFunc(h.UpdateAccount)))
	mux.Handle("DELETE /v1/accounts/{accountID}", auth.RequireAuth(http.HandlerFunc(h.DeleteAccount)))

	// Plugin listings and installations
	mux.Handle("POST /v1/plugins", auth.RequireAuth(http.HandlerFunc(h.CreatePlugin)))
	mux.Handle("PUT /v1/plugins/{pluginID}", auth.RequireAuth(http.HandlerFunc(h.UpdatePlugin)))
	mux.Handle("POST /v1/plugins/{pluginID}/install",
		auth.RequireAuth(RequireLicense(h.licenses, http.HandlerFunc(h.InstallPlugin))))
	mux.Handle("POST /v1/plugins/{pluginID}/uninstall", auth.RequireAuth(http.HandlerFunc(h.UninstallPlugin)))

	// Cart
	mux.Handle("GET /v1/cart", auth.RequireAuth(http.HandlerFunc(h.GetCart)))
	mux.Handle("POST /v1/cart/items", auth.RequireAuth(http.HandlerFunc(h.AddCartItem)))
	mux.Handle("PUT /v1/cart/items/{pluginID}", auth.RequireAuth(http.HandlerFunc(h.UpdateCartItem)))
	mux.Handle("DELETE /v1/cart/items/{pluginID}", auth.RequireAuth(http.HandlerFunc(h.RemoveCartItem)))
	mux.Handle("DELETE /v1/cart", auth.RequireAuth(http.HandlerFunc(h.ClearCart)))
	mux.Handle("POST /v1/cart/checkout", auth.RequireAuth(http.HandlerFunc(h.Checkout)))

	// Licenses
	mux.Handle("POST /v1/licenses", auth.RequireAuth(http.HandlerFunc(h.CreateLicense)))
	mux.Handle("POST /v1/licenses/{licenseID}/activate", auth.RequireAuth(http.HandlerFunc(h.ActivateLicense)))
	mux.Handle("POST /v1/licenses/{licenseID}/deactivate", auth.RequireAuth(http.HandlerFunc(h.DeactivateLicense)))
	mux.Handle("GET /v1/plugins/{pluginID}/license", auth.RequireAuth(http.HandlerFunc(h.ValidateLicense)))

	// Payments
	mux.Handle("GET /v1/payments/{paymentID}", auth.RequireAuth(http.HandlerFunc(h.GetPayment)))
	mux.Handle("GET /v1/payments/{paymentID}/commissions", auth.RequireAuth(http.HandlerFunc(h.ListCommissions)))

	// Event feed
	if ws != nil {
		mux.Handle("GET /ws/events", auth.RequireAuth(http.HandlerFunc(ws.HandleEventFeed)))
		mux.HandleFunc("GET /ws/stats", ws.HandleConnectionStats)
	}
}
