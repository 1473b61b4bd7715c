package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/review"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

const flashCookie = "flash"

type ValidationErrorResponse struct {
	Error   string            `json:"error"`
	Details map[string]string `json:"details"`
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to marshal JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal JSON response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(response); err != nil {
		log.Error().Err(err).Msg("handler: failed to write JSON response")
	}
}

func respondWithValidation(w http.ResponseWriter, fields map[string]string) {
	respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:   "Validation failed",
		Details: fields,
	})
}

func formatValidationErrors(errs validator.ValidationErrors) map[string]string {
	details := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			details[field] = "This field is required."
		case "email":
			details[field] = "Enter a valid email address."
		case "min":
			details[field] = fmt.Sprintf("Must be at least %s characters.", fe.Param())
		case "max":
			details[field] = fmt.Sprintf("Must be at most %s characters.", fe.Param())
		default:
			details[field] = fmt.Sprintf("Failed on the '%s' rule.", fe.Tag())
		}
	}
	return details
}

// validationDetails extracts per-field messages from any of the typed validation errors.
func validationDetails(err error) (map[string]string, bool) {
	var checkoutErr *checkout.ValidationError
	if errors.As(err, &checkoutErr) {
		return checkoutErr.Fields, true
	}
	var reviewErr *review.ValidationError
	if errors.As(err, &reviewErr) {
		return reviewErr.Fields, true
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		return formatValidationErrors(validationErrors), true
	}
	return nil, false
}

func mapErrorToStatusCode(err error) int {
	if _, ok := validationDetails(err); ok {
		return http.StatusBadRequest
	}
	switch {
	case errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, cart.ErrItemNotFound),
		errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, user.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, user.ErrUserExists),
		errors.Is(err, order.ErrInvalidStatusTransition),
		errors.Is(err, checkout.ErrAmountMismatch):
		return http.StatusConflict
	case errors.Is(err, order.ErrUnknownStatus),
		errors.Is(err, cart.ErrInvalidDirection),
		errors.Is(err, payment.ErrInvalidPayment),
		errors.Is(err, checkout.ErrEmptyCart):
		return http.StatusBadRequest
	case errors.Is(err, user.ErrInvalidCredentials),
		errors.Is(err, checkout.ErrUserNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, review.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, payment.ErrVerificationFailed):
		return http.StatusPaymentRequired
	default:
		return http.StatusInternalServerError
	}
}

func setFlash(w http.ResponseWriter, message string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(message),
		Path:     "/",
		HttpOnly: true,
		MaxAge:   60,
	})
}

// popFlash returns the pending flash message once and clears it.
func popFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(c.Value)
	if err != nil {
		return ""
	}
	return msg
}

func redirectWithFlash(w http.ResponseWriter, r *http.Request, target, message string) {
	if message != "" {
		setFlash(w, message)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// currentUserID is only called behind auth.RequireUser.
func currentUserID(r *http.Request) uuid.UUID {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		return uuid.Nil
	}
	return claims.UserID
}

func isJSON(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/json")
}

func decodeJSON(r *http.Request, dst interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

// safeNext only allows local redirect targets.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
