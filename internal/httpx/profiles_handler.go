package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/woo-erp-sync/internal/erp"
	"github.com/ariefcatur/woo-erp-sync/internal/reconcile"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Runner is implemented by reconcile.Service.
type Runner interface {
	Run(ctx context.Context, profileID uuid.UUID, flow reconcile.Flow) (*reconcile.Result, error)
	LastResult(ctx context.Context, profileID uuid.UUID, flow reconcile.Flow) (*reconcile.Result, error)
}

type ProfilesHandler struct {
	Store    erp.Store
	Runs     Runner
	Requests reconcile.Publisher // async runs; nil disables ?async=true
	Service  string
	Log      *zap.Logger
}

type ProfileReq struct {
	Name           string `json:"name"`
	URL            string `json:"url"`
	ConsumerKey    string `json:"consumer_key"`
	ConsumerSecret string `json:"consumer_secret"`
	RoomsURL       string `json:"rooms_url"`
	BookingsURL    string `json:"bookings_url"`
	Enabled        *bool  `json:"enabled"`
}

func (h *ProfilesHandler) Register(r chi.Router) {
	r.Get("/profiles", h.list)
	r.Post("/profiles", h.create)
	r.Get("/profiles/{id}", h.get)
	r.Put("/profiles/{id}", h.update)
	r.Post("/profiles/{id}/runs/{flow}", h.run)
	r.Get("/profiles/{id}/runs/{flow}/last", h.last)
}

func (h *ProfilesHandler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Store.ListProfiles(ctx, r.URL.Query().Get("enabled") == "true")
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]ProfileResp, 0, len(ps))
	for i := range ps {
		out = append(out, toProfileResp(&ps[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *ProfilesHandler) create(w http.ResponseWriter, r *http.Request) {
	var req ProfileReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "missing name")
		return
	}
	p := &erp.Profile{Enabled: true}
	req.apply(p)

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	if err := h.Store.SaveProfile(ctx, p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, toProfileResp(p))
}

func (h *ProfilesHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetProfile(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileResp(p))
}

// update overwrites the given fields. An empty consumer_secret keeps the stored one.
func (h *ProfilesHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req ProfileReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	p, err := h.Store.GetProfile(ctx, id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	req.apply(p)
	if err := h.Store.SaveProfile(ctx, p); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, toProfileResp(p))
}

func (req ProfileReq) apply(p *erp.Profile) {
	if req.Name != "" {
		p.Name = req.Name
	}
	p.URL = req.URL
	p.ConsumerKey = req.ConsumerKey
	if req.ConsumerSecret != "" {
		p.ConsumerSecret = req.ConsumerSecret
	}
	p.RoomsURL = req.RoomsURL
	p.BookingsURL = req.BookingsURL
	if req.Enabled != nil {
		p.Enabled = *req.Enabled
	}
}

func (h *ProfilesHandler) run(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	flow, err := reconcile.ParseFlow(chi.URLParam(r, "flow"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if r.URL.Query().Get("async") == "true" {
		if h.Requests == nil {
			writeError(w, http.StatusServiceUnavailable, "async runs are not enabled")
			return
		}
		if _, err := h.Store.GetProfile(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		eventID := reconcile.RequestRun(h.Requests, h.Service, id, flow, r.Header.Get("X-Request-Id"))
		writeJSON(w, http.StatusAccepted, map[string]string{"event_id": eventID, "flow": string(flow)})
		return
	}

	res, err := h.Runs.Run(r.Context(), id, flow)
	switch {
	case errors.Is(err, reconcile.ErrConfig):
		writeJSON(w, http.StatusUnprocessableEntity, res)
	case err != nil && res != nil:
		// run finished but its status could not be stored
		h.log().Error("sync run", zap.String("profile_id", id.String()), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, res)
	case err != nil:
		writeStoreError(w, err)
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (h *ProfilesHandler) last(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	flow, err := reconcile.ParseFlow(chi.URLParam(r, "flow"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	res, err := h.Runs.LastResult(ctx, id, flow)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *ProfilesHandler) log() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, erp.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, erp.ErrAlreadyExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, erp.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reconcile.ErrUnknownFlow):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
