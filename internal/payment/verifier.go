// Package payment confirms gateway payments and turns the paid cart into an order.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment/khalti"
)

var (
	ErrInvalidPayment     = errors.New("invalid payment request")
	ErrVerificationFailed = khalti.ErrVerificationFailed
)

var hundred = decimal.NewFromInt(100)

type Gateway interface {
	Verify(ctx context.Context, token string, amount int64) (*khalti.Verification, error)
}

type VerifyRequest struct {
	UserID   uuid.UUID
	Token    string
	Amount   int64 // minor units (paisa)
	Delivery order.Delivery
}

type Verifier interface {
	Verify(ctx context.Context, req VerifyRequest) (*order.Order, error)
}

type verifier struct {
	gateway  Gateway
	carts    cart.Service
	checkout checkout.Service
}

func NewVerifier(gateway Gateway, carts cart.Service, checkoutSvc checkout.Service) Verifier {
	return &verifier{gateway: gateway, carts: carts, checkout: checkoutSvc}
}

// ParseAmount reads a positive integer amount in minor units from form input.
func ParseAmount(raw string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: amount must be a positive integer", ErrInvalidPayment)
	}
	return n, nil
}

func ToMinorUnits(total decimal.Decimal) decimal.Decimal {
	return total.Mul(hundred)
}

// Verify checks the payment with the gateway and places a Processing order from the cart.
// Nothing is written unless the gateway confirms the payment.
func (v *verifier) Verify(ctx context.Context, req VerifyRequest) (*order.Order, error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, fmt.Errorf("%w: token is required", ErrInvalidPayment)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidPayment)
	}

	if err := checkout.ValidateDelivery(order.MethodKhalti, req.Delivery); err != nil {
		return nil, err
	}

	c, err := v.carts.ListForUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		log.Warn().Stringer("user_id", req.UserID).Msg("payment: verification requested for empty cart")
		return nil, checkout.ErrEmptyCart
	}
	if !ToMinorUnits(c.Total).Equal(decimal.NewFromInt(req.Amount)) {
		log.Warn().
			Stringer("user_id", req.UserID).
			Int64("amount", req.Amount).
			Str("cart_total", c.Total.StringFixed(2)).
			Msg("payment: amount does not match cart total")
		return nil, checkout.ErrAmountMismatch
	}

	confirmation, err := v.gateway.Verify(ctx, req.Token, req.Amount)
	if err != nil {
		log.Warn().Err(err).Stringer("user_id", req.UserID).Msg("payment: gateway did not confirm payment")
		if errors.Is(err, ErrVerificationFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	expected := decimal.New(req.Amount, -2)
	placement, err := v.checkout.PlaceOrder(ctx, checkout.PlaceOrderRequest{
		UserID:        req.UserID,
		Method:        order.MethodKhalti,
		Delivery:      req.Delivery,
		ExpectedTotal: &expected,
	})
	if err != nil {
		// The payment went through but the cart changed under us; it needs manual reconciliation.
		log.Error().Err(err).Stringer("user_id", req.UserID).Str("idx", confirmation.IDX).Msg("payment: verified payment could not be turned into an order")
		return nil, err
	}

	log.Info().Stringer("order_id", placement.Order.ID).Str("idx", confirmation.IDX).Msg("payment: khalti order created")
	return placement.Order, nil
}
