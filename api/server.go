/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, the middleware stack and the route table.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request, picked up by the logger
  2. observe:    Structured request log + Prometheus counters
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web dashboard
  5. Auth:       Bearer JWT on /api (devClaims when auth is disabled)

ROUTE GROUPS:
  /health                          Liveness + store reachability
  /metrics                         Prometheus exposition
  /api/shops                       Shop profile of the caller
  /api/shops/{shopId}/...          Shop-scoped routes (shop check applied)
  /api/sales|products|customers/*  Entity routes (shop check after load)
  /api/scenarios                   Demo data, development only

SEE ALSO:
  - handlers.go: Handler and error mapping
  - auth.go: token verification and shop access
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig controls the outer surface of the API.
type RouterConfig struct {
	AuthEnabled    bool
	JWTSecret      string
	AllowedOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(h.observe)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)
	r.Method(http.MethodGet, "/metrics", h.metrics.Handler())

	authenticate := devClaims
	if cfg.AuthEnabled {
		authenticate = NewAuthenticator(cfg.JWTSecret).Middleware
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/shops", func(r chi.Router) {
			r.Post("/", h.SaveShop)
			r.Get("/me", h.MyShop)

			r.Route("/{shopId}", func(r chi.Router) {
				r.Use(h.requireShop)
				r.Get("/", h.GetShop)

				// Sales routes
				r.Post("/sales", h.CreateSale)
				r.Get("/sales", h.ListSales)

				// Stock routes
				r.Post("/stock", h.RecordStockMovement)
				r.Get("/stock", h.ListStockTransactions)

				// Udhar routes
				r.Post("/udhar", h.RecordUdhar)
				r.Get("/udhar", h.ListUdharTransactions)

				// Sync routes
				r.Route("/sync", func(r chi.Router) {
					r.Post("/upload", h.SyncUpload)
					r.Get("/download", h.SyncDownload)
					r.Get("/timestamp", h.SyncTimestamp)
				})

				r.Route("/products", func(r chi.Router) {
					r.Get("/", h.ListProducts)
					r.Post("/", h.CreateProduct)
					r.Get("/low-stock", h.LowStockProducts)
					r.Get("/{productId}", h.GetProduct)
					r.Put("/{productId}", h.UpdateProduct)
					r.Delete("/{productId}", h.DeleteProduct)
				})

				r.Route("/customers", func(r chi.Router) {
					r.Get("/", h.ListCustomers)
					r.Post("/", h.CreateCustomer)
					r.Get("/{customerId}", h.GetCustomer)
					r.Put("/{customerId}", h.UpdateCustomer)
					r.Delete("/{customerId}", h.DeleteCustomer)
				})

				r.Route("/suppliers", func(r chi.Router) {
					r.Get("/", h.ListSuppliers)
					r.Post("/", h.CreateSupplier)
					r.Get("/{supplierId}", h.GetSupplier)
					r.Put("/{supplierId}", h.UpdateSupplier)
					r.Delete("/{supplierId}", h.DeleteSupplier)
				})

				r.Route("/reports", func(r chi.Router) {
					r.Get("/sales", h.SalesReport)
					r.Get("/profit-loss", h.ProfitLossReport)
					r.Get("/stock", h.StockReport)
					r.Get("/udhar", h.UdharReport)
					r.Get("/dashboard", h.Dashboard)
				})

				if h.environment == "development" {
					r.Post("/scenarios/load", h.LoadScenario)
				}
			})
		})

		// Entity routes: the shop check runs after the entity is loaded.
		r.Get("/sales/{saleId}", h.GetSale)
		r.Patch("/sales/{saleId}/payment", h.UpdateSalePayment)
		r.Get("/products/{productId}/stock-history", h.ProductStockHistory)
		r.Get("/customers/{customerId}/udhar", h.CustomerUdhar)

		if h.environment == "development" {
			r.Get("/scenarios", h.ListScenarios)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusNotFound, "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

// observe logs each request and feeds the HTTP metrics. The route label
// is the chi pattern, so ids do not explode label cardinality.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		elapsed := time.Since(start)
		h.metrics.ObserveHTTP(r.Method, route, status, elapsed)
		h.logger.HTTPRequest(r.Context(), r.Method, r.URL.Path, status, elapsed)
	})
}
