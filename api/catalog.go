package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartpasal/pos-ledger/catalog"
)

// =============================================================================
// SHOP HANDLERS
// =============================================================================

// SaveShop creates the caller's shop, or updates it if they have one.
// POST /api/shops
func (h *Handler) SaveShop(w http.ResponseWriter, r *http.Request) {
	var req catalog.ShopProfile
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	shop, created, err := h.Catalog.SaveShop(r.Context(), actor(r.Context()), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.WithContext(r.Context()).WithShop(shop.ID).Info("Shop created", "ownerId", shop.OwnerID)
	}
	writeData(w, status, shop)
}

// MyShop returns the shop owned by the caller.
// GET /api/shops/me
func (h *Handler) MyShop(w http.ResponseWriter, r *http.Request) {
	shop, err := h.Catalog.ShopByOwner(r.Context(), actor(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, shop)
}

// GetShop returns a shop by id.
// GET /api/shops/{shopId}
func (h *Handler) GetShop(w http.ResponseWriter, r *http.Request) {
	shop, err := h.Catalog.GetShop(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, shop)
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// GET /api/shops/{shopId}/products?category=&search=
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	filter := catalog.ProductFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
	}
	list, err := h.Catalog.ListProducts(r.Context(), chi.URLParam(r, "shopId"), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// GET /api/shops/{shopId}/products/low-stock
func (h *Handler) LowStockProducts(w http.ResponseWriter, r *http.Request) {
	list, err := h.Catalog.LowStockProducts(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// POST /api/shops/{shopId}/products
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.NewProduct
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.Catalog.CreateProduct(r.Context(), chi.URLParam(r, "shopId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, p)
}

// GET /api/shops/{shopId}/products/{productId}
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.Catalog.GetProduct(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

// PUT /api/shops/{shopId}/products/{productId}
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req catalog.ProductPatch
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Actor = actor(r.Context())
	p, err := h.Catalog.UpdateProduct(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "productId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, p)
}

// DELETE /api/shops/{shopId}/products/{productId}
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteProduct(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "productId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "Product deleted"})
}

// =============================================================================
// CUSTOMER HANDLERS
// =============================================================================

func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Catalog.ListCustomers(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req catalog.NewCustomer
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.Catalog.CreateCustomer(r.Context(), chi.URLParam(r, "shopId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, c)
}

func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	c, err := h.Catalog.GetCustomer(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "customerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

// UpdateCustomer edits contact details. Balances are owned by the udhar
// ledger and are rejected as unknown fields.
func (h *Handler) UpdateCustomer(w http.ResponseWriter, r *http.Request) {
	var req catalog.CustomerPatch
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.Catalog.UpdateCustomer(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "customerId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, c)
}

func (h *Handler) DeleteCustomer(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteCustomer(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "customerId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "Customer deleted"})
}

// =============================================================================
// SUPPLIER HANDLERS
// =============================================================================

func (h *Handler) ListSuppliers(w http.ResponseWriter, r *http.Request) {
	list, err := h.Catalog.ListSuppliers(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

func (h *Handler) CreateSupplier(w http.ResponseWriter, r *http.Request) {
	var req catalog.NewSupplier
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.Catalog.CreateSupplier(r.Context(), chi.URLParam(r, "shopId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, s)
}

func (h *Handler) GetSupplier(w http.ResponseWriter, r *http.Request) {
	s, err := h.Catalog.GetSupplier(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "supplierId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s)
}

func (h *Handler) UpdateSupplier(w http.ResponseWriter, r *http.Request) {
	var req catalog.SupplierPatch
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.Catalog.UpdateSupplier(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "supplierId"), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, s)
}

func (h *Handler) DeleteSupplier(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.DeleteSupplier(r.Context(), chi.URLParam(r, "shopId"), chi.URLParam(r, "supplierId")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"message": "Supplier deleted"})
}
