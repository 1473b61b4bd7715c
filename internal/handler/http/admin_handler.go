package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AdminHandler struct {
	orders order.Service
}

func NewAdminHandler(orders order.Service) *AdminHandler {
	return &AdminHandler{orders: orders}
}

func (h *AdminHandler) RegisterRoutes(router chi.Router) {
	router.Route("/admin", func(r chi.Router) {
		r.Use(auth.RequireAdmin)
		r.Post("/orders/{orderID}/status", h.handleUpdateOrderStatus)
	})
}

func (h *AdminHandler) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "orderID")
	orderID, err := uuid.FromString(idParam)
	if err != nil {
		log.Warn().Err(err).Str("order_id", idParam).Msg("handler: failed to parse order id")
		respondWithError(w, http.StatusBadRequest, "Invalid order id")
		return
	}

	var req UpdateStatusRequest
	if isJSON(r) {
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	} else {
		req.Status = r.FormValue("status")
	}

	updated, err := h.orders.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var transitionErr *order.TransitionError
		switch {
		case errors.As(err, &transitionErr):
			respondWithError(w, statusCode, transitionErr.Error())
		case errors.Is(err, order.ErrUnknownStatus):
			respondWithError(w, statusCode, "Unknown order status")
		case errors.Is(err, order.ErrOrderNotFound):
			respondWithError(w, statusCode, "Order not found")
		default:
			log.Error().Err(err).Stringer("order_id", orderID).Msg("handler: failed to update order status")
			respondWithError(w, statusCode, "Failed to update order status")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}
