package resourcemanager

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opennaas/roadm-am/internal/httpserver"
	"github.com/opennaas/roadm-am/pkg/store"
)

// Handler exposes a debug view over the Resource Manager, mounted under the
// operational HTTP server's /debug/v1 prefix. The GENI RSpec surface itself
// is owned by the external delegate process and isn't part of this
// handler; the mutating routes exist purely so an operator can exercise
// reserve/start/stop/delete against the live AM without a delegate in front
// of it — the delegate remains the only caller in production.
type Handler struct {
	mgr    *Manager
	logger *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(mgr *Manager, logger *slog.Logger) *Handler {
	return &Handler{mgr: mgr, logger: logger}
}

// Routes returns the handler's chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/resources", h.handleListResources)
	r.Get("/slices/{sliceURN}", h.handleGetSlice)
	r.Post("/slices/reserve", h.handleReserve)
	r.Post("/slices/{sliceURN}/start", h.handleStart)
	r.Post("/slices/{sliceURN}/stop", h.handleStop)
	r.Post("/slices/{sliceURN}/delete", h.handleDelete)
	return r
}

func (h *Handler) handleListResources(w http.ResponseWriter, r *http.Request) {
	params, err := httpserver.ParseOffsetParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resources, err := h.mgr.GetResources(r.Context())
	if err != nil {
		h.logger.Error("debug: listing resources", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "listing resources")
		return
	}

	start := params.Offset
	if start > len(resources) {
		start = len(resources)
	}
	end := start + params.PageSize
	if end > len(resources) {
		end = len(resources)
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewOffsetPage(resources[start:end], params, len(resources)))
}

func (h *Handler) handleGetSlice(w http.ResponseWriter, r *http.Request) {
	sliceURN := chi.URLParam(r, "sliceURN")

	resources, err := h.mgr.GetSliceResources(r.Context(), sliceURN)
	if err != nil {
		h.logger.Error("debug: getting slice resources", "slice_urn", sliceURN, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal", "getting slice resources")
		return
	}

	httpserver.Respond(w, http.StatusOK, resources)
}

// reserveRequestSpec is one requested cross-connect in a debug reservation
// request.
type reserveRequestSpec struct {
	ResourceName string `json:"resource_name" validate:"required"`
	ResourceType string `json:"resource_type" validate:"required"`
	InEndpoint   string `json:"in_endpoint" validate:"required"`
	InLabel      string `json:"in_label" validate:"required"`
	OutEndpoint  string `json:"out_endpoint" validate:"required"`
	OutLabel     string `json:"out_label" validate:"required"`
}

// reserveRequest is the debug reservation request body.
type reserveRequest struct {
	Specs       []reserveRequestSpec `json:"specs" validate:"required,min=1,dive"`
	SliceURN    string               `json:"slice_urn" validate:"required"`
	EndTime     *time.Time           `json:"end_time,omitempty"`
	ClientName  string               `json:"client_name" validate:"required"`
	ClientID    string               `json:"client_id" validate:"required"`
	ClientEmail string               `json:"client_email" validate:"omitempty,email"`
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	specs := make([]ReserveSpec, 0, len(req.Specs))
	for _, s := range req.Specs {
		specs = append(specs, ReserveSpec{
			ResourceName: s.ResourceName,
			ResourceType: s.ResourceType,
			InEndpoint:   s.InEndpoint,
			InLabel:      s.InLabel,
			OutEndpoint:  s.OutEndpoint,
			OutLabel:     s.OutLabel,
		})
	}
	client := store.ClientInfo{Name: req.ClientName, ID: req.ClientID, Email: req.ClientEmail}

	resources, err := h.mgr.ReserveResources(r.Context(), specs, req.SliceURN, req.EndTime, client)
	if err != nil {
		h.logger.Error("debug: reserving resources", "slice_urn", req.SliceURN, "error", err)
		httpserver.RespondError(w, http.StatusBadRequest, "reserve_failed", err.Error())
		return
	}

	httpserver.Respond(w, http.StatusCreated, resources)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	h.applySliceAction(w, r, "start", h.mgr.StartSlices)
}

func (h *Handler) handleStop(w http.ResponseWriter, r *http.Request) {
	h.applySliceAction(w, r, "stop", h.mgr.StopSlices)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	h.applySliceAction(w, r, "delete", h.mgr.DeleteSlices)
}

// applySliceAction runs one of StartSlices/StopSlices/DeleteSlices against
// the single slice named in the URL, the debug-surface equivalent of the
// GENI delegate's perform_operational_action / delete calls.
func (h *Handler) applySliceAction(w http.ResponseWriter, r *http.Request, action string, fn func(ctx context.Context, slices []string) error) {
	sliceURN := chi.URLParam(r, "sliceURN")

	if err := fn(r.Context(), []string{sliceURN}); err != nil {
		h.logger.Error("debug: applying slice action", "action", action, "slice_urn", sliceURN, "error", err)
		httpserver.RespondError(w, http.StatusBadRequest, action+"_failed", err.Error())
		return
	}

	httpserver.Respond(w, http.StatusOK, map[string]string{"status": action + "ed", "slice_urn": sliceURN})
}
