package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type BookingsHandler struct {
	Store erp.Store
}

type CreateBookingReq struct {
	Name         string    `json:"name"`
	RoomName     string    `json:"room_name"`
	RemoteRoomID string    `json:"remote_room_id"`
	ProductID    string    `json:"product_id"`
	CustomerID   string    `json:"customer_id"`
	CheckIn      time.Time `json:"check_in"`
	CheckOut     time.Time `json:"check_out"`
	Status       string    `json:"status"`
}

func (h *BookingsHandler) Register(r chi.Router) {
	r.Post("/bookings", h.create)
	r.Get("/bookings/pending", h.pending)
}

func (h *BookingsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateBookingReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.RoomName == "" && req.RemoteRoomID == "" {
		writeError(w, http.StatusBadRequest, "room_name or remote_room_id required")
		return
	}
	if req.CheckIn.IsZero() {
		writeError(w, http.StatusBadRequest, "missing check_in")
		return
	}
	if req.CheckOut.IsZero() {
		req.CheckOut = req.CheckIn.AddDate(0, 0, 1)
	}
	if !req.CheckOut.After(req.CheckIn) {
		writeError(w, http.StatusBadRequest, "check_out must be after check_in")
		return
	}
	if req.Status == "" {
		req.Status = "confirmed"
	}

	b := &erp.Booking{
		Name:         req.Name,
		RoomName:     req.RoomName,
		RemoteRoomID: req.RemoteRoomID,
		CheckIn:      req.CheckIn,
		CheckOut:     req.CheckOut,
		Status:       req.Status,
	}
	var ok bool
	if b.ProductID, ok = optionalUUID(w, req.ProductID, "product_id"); !ok {
		return
	}
	if b.CustomerID, ok = optionalUUID(w, req.CustomerID, "customer_id"); !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.CreateBooking(ctx, b); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingResp(b))
}

func (h *BookingsHandler) pending(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	bs, err := h.Store.ListUnpushedBookings(ctx)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	out := make([]BookingResp, 0, len(bs))
	for i := range bs {
		out = append(out, toBookingResp(&bs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func optionalUUID(w http.ResponseWriter, s, field string) (*uuid.UUID, bool) {
	if s == "" {
		return nil, true
	}
	id, err := uuid.Parse(s)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+field)
		return nil, false
	}
	return &id, true
}
