package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrdersHandler manages ERP-side records: customers, products and draft
// sales orders. Confirmed local orders are what the export flow picks up.
type OrdersHandler struct {
	Store erp.Store
	Now   func() time.Time
}

type CreateCustomerReq struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CreateProductReq struct {
	Name            string          `json:"name"`
	SKU             string          `json:"sku"`
	ListPrice       decimal.Decimal `json:"list_price"`
	RemoteProductID string          `json:"remote_product_id"`
}

type OrderLineReq struct {
	ProductID string           `json:"product_id"`
	Quantity  decimal.Decimal  `json:"quantity"`
	PriceUnit *decimal.Decimal `json:"price_unit"` // default: product list price
}

type CreateOrderReq struct {
	CustomerID string         `json:"customer_id"`
	Lines      []OrderLineReq `json:"lines"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/customers", h.createCustomer)
	r.Post("/products", h.createProduct)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Post("/orders/{id}/confirm", h.transition(erp.StateConfirmed))
	r.Post("/orders/{id}/cancel", h.transition(erp.StateCancelled))
}

func (h *OrdersHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func (h *OrdersHandler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Name == "" || req.Email == "" {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// email is the customer identity, same as the import flow
	if c, err := h.Store.FindCustomerByEmail(ctx, req.Email); err == nil {
		writeJSON(w, http.StatusOK, map[string]string{"id": c.ID.String(), "email": c.Email})
		return
	}
	c := &erp.Customer{Name: req.Name, Email: req.Email, Phone: req.Phone}
	if err := h.Store.CreateCustomer(ctx, c); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": c.ID.String(), "email": c.Email})
}

func (h *OrdersHandler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	if req.ListPrice.IsNegative() {
		writeError(w, http.StatusBadRequest, "list_price must not be negative")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p := &erp.Product{Name: req.Name, SKU: req.SKU, ListPrice: req.ListPrice, RemoteProductID: req.RemoteProductID}
	if err := h.Store.CreateProduct(ctx, p); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": p.ID.String(), "sku": p.SKU})
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	customerID, err := uuid.Parse(req.CustomerID)
	if err != nil || len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "missing fields")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, err := h.Store.GetCustomer(ctx, customerID); err != nil {
		writeError(w, http.StatusBadRequest, "unknown customer")
		return
	}

	o := &erp.SalesOrder{
		CustomerID: customerID,
		OrderDate:  h.now(),
		State:      erp.StateDraft,
		Lines:      make([]erp.OrderLine, 0, len(req.Lines)),
	}
	for _, l := range req.Lines {
		pid, err := uuid.Parse(l.ProductID)
		if err != nil || !l.Quantity.IsPositive() {
			writeError(w, http.StatusBadRequest, "invalid line")
			return
		}
		p, err := h.Store.GetProduct(ctx, pid)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown product "+l.ProductID)
			return
		}
		price := p.ListPrice
		if l.PriceUnit != nil {
			price = *l.PriceUnit
		}
		o.Lines = append(o.Lines, erp.OrderLine{ProductID: pid, Name: p.Name, Quantity: l.Quantity, PriceUnit: price})
	}

	if err := h.Store.CreateSalesOrder(ctx, o); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResp(o))
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	o, err := h.Store.GetSalesOrder(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResp(o))
}

func (h *OrdersHandler) transition(to erp.OrderState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := h.Store.SetOrderState(ctx, id, to); err != nil {
			writeStoreError(w, err)
			return
		}
		o, err := h.Store.GetSalesOrder(ctx, id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResp(o))
	}
}
