package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/media"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
)

const emptyCartMessage = "Your cart is empty."

type CheckoutErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
	Summary *checkout.Summary `json:"summary,omitempty"`
}

type KhaltiResponse struct {
	Success bool              `json:"success"`
	OrderID *uuid.UUID        `json:"order_id,omitempty"`
	Error   string            `json:"error,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

type CheckoutHandler struct {
	checkout checkout.Service
	verifier payment.Verifier
}

func NewCheckoutHandler(checkoutSvc checkout.Service, verifier payment.Verifier) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkoutSvc, verifier: verifier}
}

func (h *CheckoutHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Get("/checkout/", h.handleCheckoutPage)
		r.Post("/checkout/", h.handlePlaceOrder)
		r.Get("/checkout/success/{orderID}", h.handleSuccess)
	})
	router.HandleFunc(khaltiCallbackPath, h.handleVerifyKhalti)
}

func (h *CheckoutHandler) handleCheckoutPage(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	summary, err := h.checkout.Summary(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("handler: failed to load checkout summary")
		respondWithError(w, http.StatusInternalServerError, "Failed to load checkout")
		return
	}
	if summary.Cart.IsEmpty() {
		redirectWithFlash(w, r, cartPath, emptyCartMessage)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

func (h *CheckoutHandler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(media.MaxProofSize); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid form")
			return
		}
	}

	req := checkout.PlaceOrderRequest{
		UserID: userID,
		Method: order.MethodManual,
		Delivery: order.Delivery{
			Address:     strings.TrimSpace(r.FormValue("delivery_address")),
			PhoneNumber: strings.TrimSpace(r.FormValue("phone_number")),
		},
	}

	file, header, err := r.FormFile("payment_proof")
	switch {
	case err == nil:
		defer file.Close()
		req.PaymentProof = &checkout.Upload{Filename: header.Filename, Content: file}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		log.Warn().Err(err).Stringer("user_id", userID).Msg("handler: unreadable payment proof upload")
		respondWithError(w, http.StatusBadRequest, "Invalid payment proof upload")
		return
	}

	placement, err := h.checkout.PlaceOrder(r.Context(), req)
	if err != nil {
		if details, ok := validationDetails(err); ok {
			resp := CheckoutErrorResponse{Error: "Validation failed", Details: details}
			if summary, sErr := h.checkout.Summary(r.Context(), userID); sErr == nil {
				resp.Summary = summary
			}
			respondWithJSON(w, http.StatusBadRequest, resp)
			return
		}
		if errors.Is(err, checkout.ErrEmptyCart) {
			redirectWithFlash(w, r, cartPath, emptyCartMessage)
			return
		}
		log.Error().Err(err).Stringer("user_id", userID).Msg("handler: failed to place order")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to place order")
		return
	}

	respondWithJSON(w, http.StatusOK, placement)
}

func (h *CheckoutHandler) handleSuccess(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.FromString(chi.URLParam(r, "orderID"))
	if err != nil {
		redirectWithFlash(w, r, cartPath, "Order not found.")
		return
	}

	placement, err := h.checkout.Success(r.Context(), currentUserID(r), orderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			redirectWithFlash(w, r, cartPath, "Order not found.")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to load order")
		return
	}
	respondWithJSON(w, http.StatusOK, placement)
}

// handleVerifyKhalti is called by the gateway widget's client-side callback, so it answers in JSON
// and carries no CSRF token.
func (h *CheckoutHandler) handleVerifyKhalti(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		respondWithJSON(w, http.StatusUnauthorized, KhaltiResponse{Error: "Authentication required"})
		return
	}

	amount, err := payment.ParseAmount(r.FormValue("amount"))
	if err != nil {
		respondWithJSON(w, http.StatusBadRequest, KhaltiResponse{Error: "Invalid payment amount"})
		return
	}

	placed, err := h.verifier.Verify(r.Context(), payment.VerifyRequest{
		UserID: claims.UserID,
		Token:  r.FormValue("token"),
		Amount: amount,
		Delivery: order.Delivery{
			Address:     strings.TrimSpace(r.FormValue("delivery_address")),
			PhoneNumber: strings.TrimSpace(r.FormValue("phone_number")),
		},
	})
	if err != nil {
		if details, ok := validationDetails(err); ok {
			respondWithJSON(w, http.StatusBadRequest, KhaltiResponse{Error: "Validation failed", Details: details})
			return
		}
		switch {
		case errors.Is(err, payment.ErrInvalidPayment):
			respondWithJSON(w, http.StatusBadRequest, KhaltiResponse{Error: "Invalid payment request"})
		case errors.Is(err, checkout.ErrEmptyCart):
			respondWithJSON(w, http.StatusOK, KhaltiResponse{Error: emptyCartMessage})
		case errors.Is(err, checkout.ErrAmountMismatch):
			respondWithJSON(w, http.StatusOK, KhaltiResponse{Error: "Payment amount does not match cart total"})
		default:
			respondWithJSON(w, http.StatusOK, KhaltiResponse{Error: "Payment verification failed"})
		}
		return
	}

	respondWithJSON(w, http.StatusOK, KhaltiResponse{Success: true, OrderID: &placed.ID})
}
