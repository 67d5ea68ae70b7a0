package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/nmalhotra/orderflow/internal/order/application"
	"github.com/nmalhotra/orderflow/internal/order/domain"
	"github.com/nmalhotra/orderflow/pkg/tracing"
)

type OrderPlacer interface {
	Place(ctx context.Context, req application.PlaceRequest) domain.Outcome
}

type Handler struct {
	log    *slog.Logger
	placer OrderPlacer
	reader application.OrderReader
	tracer trace.Tracer
}

func NewHandler(log *slog.Logger, placer OrderPlacer, reader application.OrderReader) *Handler {
	return &Handler{
		log:    log,
		placer: placer,
		reader: reader,
		tracer: otel.Tracer("order-http"),
	}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/orders", h.createOrder)
	r.Put("/orders/{id}", h.updateOrder)
	r.Get("/orders/{id}", h.getOrder)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

type orderRequest struct {
	ID       string            `json:"id"`
	BranchID string            `json:"branch_id"`
	Customer string            `json:"customer"`
	Items    []domain.LineItem `json:"items"`
	// ItemsChanged only matters on update; see Placer.
	ItemsChanged *bool `json:"items_changed,omitempty"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()
	h.place(ctx, w, r, "", false)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "UpdateOrder")
	defer span.End()
	h.place(ctx, w, r, chi.URLParam(r, "id"), true)
}

func (h *Handler) place(ctx context.Context, w http.ResponseWriter, r *http.Request, id string, isUpdate bool) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if id == "" {
		id = req.ID
	}
	if id == "" {
		id = uuid.NewString()
	}

	// Updates re-run payment and inventory unless the caller states the
	// item set is untouched.
	itemsChanged := true
	if isUpdate && req.ItemsChanged != nil {
		itemsChanged = *req.ItemsChanged
	}

	outcome := h.placer.Place(ctx, application.PlaceRequest{
		Order:        domain.NewOrder(id, req.BranchID, req.Customer, req.Items),
		IsUpdate:     isUpdate,
		ItemsChanged: itemsChanged,
		Traceparent:  traceparentFrom(ctx, r),
	})

	switch outcome.Kind {
	case domain.OutcomeCommitted:
		status := http.StatusCreated
		if isUpdate {
			status = http.StatusOK
		}
		writeJSON(w, status, map[string]any{
			"order_id": outcome.Order.ID,
			"total":    outcome.Order.Total,
		})
	case domain.OutcomeDeclined:
		writeJSON(w, http.StatusPaymentRequired, map[string]string{"error": outcome.Reason})
	case domain.OutcomeInsufficientStock:
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"violations": outcome.Violations,
		})
	default:
		h.log.Error("placement failed", "order_id", id, "err", outcome.Err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "order placement failed"})
	}
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.reader.Get(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		h.log.Error("get order failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         o.ID,
		"branch_id":  o.BranchID,
		"customer":   o.Customer,
		"total":      o.Total,
		"items":      o.Items,
		"created_at": o.CreatedAt,
		"updated_at": o.UpdatedAt,
	})
}

func traceparentFrom(ctx context.Context, r *http.Request) string {
	if tp := r.Header.Get("traceparent"); tp != "" {
		return tp
	}
	return tracing.Traceparent(ctx)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
