package checkout

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/media"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrAmountMismatch = errors.New("paid amount does not match cart total")
)

// MediaStore is the part of media.Store checkout needs.
type MediaStore interface {
	URL(rel string) string
	SavePaymentProof(filename string, r io.Reader) (string, error)
	Remove(rel string) error
	GenerateOrderQR(orderID uuid.UUID, payload string) (string, error)
}

type Upload struct {
	Filename string
	Content  io.Reader
}

type PlaceOrderRequest struct {
	UserID       uuid.UUID
	Method       order.PaymentMethod
	Delivery     order.Delivery
	PaymentProof *Upload
	// ExpectedTotal, when set, must equal the locked cart total or the order is not placed.
	ExpectedTotal *decimal.Decimal
}

type Summary struct {
	Cart      *cart.Cart `json:"cart"`
	QRCodeURL string     `json:"qr_code_url"`
}

type Placement struct {
	Order     *order.Order `json:"order"`
	QRCodeURL string       `json:"qr_code_url"`
}

type Service interface {
	Summary(ctx context.Context, userID uuid.UUID) (*Summary, error)
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Placement, error)
	Success(ctx context.Context, userID, orderID uuid.UUID) (*Placement, error)
}

type service struct {
	carts    cart.Service
	orders   order.Repository
	uow      UnitOfWork
	media    MediaStore
	validate *validator.Validate
}

func NewService(carts cart.Service, orders order.Repository, uow UnitOfWork, store MediaStore) Service {
	return &service{
		carts:    carts,
		orders:   orders,
		uow:      uow,
		media:    store,
		validate: newValidator(),
	}
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID) (*Summary, error) {
	c, err := s.carts.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Summary{Cart: c, QRCodeURL: s.media.URL(media.StaticQRPath())}, nil
}

// PlaceOrder turns the user's cart into an order. The order insert, item snapshots and
// cart clearing commit together or not at all. A payment proof is checked and stored before
// the transaction so a rejected upload leaves the cart untouched.
func (s *service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Placement, error) {
	if err := s.validateRequest(req); err != nil {
		log.Warn().Err(err).Stringer("user_id", req.UserID).Msg("service: checkout rejected, invalid form")
		return nil, err
	}

	proofRel, err := s.storePaymentProof(req)
	if err != nil {
		return nil, err
	}

	var placed *order.Order
	err = s.uow.Do(ctx, req.UserID, func(tx Tx) error {
		items, err := tx.Cart().ListForUser(ctx, req.UserID)
		if err != nil {
			return err
		}

		c := cart.NewCart(items)
		if c.IsEmpty() {
			return ErrEmptyCart
		}
		if req.ExpectedTotal != nil && !req.ExpectedTotal.Equal(c.Total) {
			log.Warn().
				Stringer("user_id", req.UserID).
				Str("expected", req.ExpectedTotal.StringFixed(2)).
				Str("cart_total", c.Total.StringFixed(2)).
				Msg("service: checkout amount mismatch")
			return ErrAmountMismatch
		}

		lines := make([]order.Line, 0, len(c.Items))
		for _, item := range c.Items {
			lines = append(lines, order.Line{
				ProductID:   item.ProductID,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
			})
		}

		o, err := order.NewFromLines(req.UserID, req.Method, req.Delivery, lines)
		if err != nil {
			return err
		}
		o.PaymentProof = proofRel
		if err := tx.Orders().Create(ctx, o); err != nil {
			return err
		}
		if _, err := tx.Cart().ClearForUser(ctx, req.UserID); err != nil {
			return err
		}

		placed = o
		return nil
	})
	if err != nil {
		s.discardPaymentProof(proofRel)
		if errors.Is(err, ErrEmptyCart) || errors.Is(err, ErrAmountMismatch) || errors.Is(err, ErrUserNotFound) {
			log.Warn().Err(err).Stringer("user_id", req.UserID).Msg("service: checkout rejected")
			return nil, err
		}
		log.Error().Err(err).Stringer("user_id", req.UserID).Msg("service: checkout failed, transaction rolled back")
		return nil, fmt.Errorf("service: failed to place order: %w", err)
	}

	log.Info().
		Stringer("order_id", placed.ID).
		Stringer("user_id", req.UserID).
		Stringer("payment_method", req.Method).
		Str("total", placed.TotalPrice.StringFixed(2)).
		Bool("payment_proof", proofRel != "").
		Msg("service: order placed")

	s.generateQR(placed)

	return &Placement{Order: placed, QRCodeURL: s.media.URL(media.StaticQRPath())}, nil
}

// validateRequest collects delivery and payment proof field errors into one ValidationError.
func (s *service) validateRequest(req PlaceOrderRequest) error {
	fields := make(map[string]string)

	if err := validateDelivery(s.validate, req.Method, req.Delivery); err != nil {
		var validationErr *ValidationError
		if !errors.As(err, &validationErr) {
			return err
		}
		for k, v := range validationErr.Fields {
			fields[k] = v
		}
	}
	if hasUpload(req.PaymentProof) {
		if err := media.ValidateProofName(req.PaymentProof.Filename); err != nil {
			fields[paymentProofField] = proofMessage(err)
		}
	}

	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (s *service) storePaymentProof(req PlaceOrderRequest) (string, error) {
	if !hasUpload(req.PaymentProof) {
		return "", nil
	}

	rel, err := s.media.SavePaymentProof(req.PaymentProof.Filename, req.PaymentProof.Content)
	if err != nil {
		if errors.Is(err, media.ErrUnsupportedFileType) || errors.Is(err, media.ErrFileTooLarge) {
			log.Warn().Err(err).Stringer("user_id", req.UserID).Msg("service: checkout rejected, invalid payment proof")
			return "", &ValidationError{Fields: map[string]string{paymentProofField: proofMessage(err)}}
		}
		log.Error().Err(err).Stringer("user_id", req.UserID).Msg("service: failed to store payment proof")
		return "", fmt.Errorf("service: failed to store payment proof: %w", err)
	}
	return rel, nil
}

func (s *service) discardPaymentProof(rel string) {
	if rel == "" {
		return
	}
	if err := s.media.Remove(rel); err != nil {
		log.Warn().Err(err).Str("path", rel).Msg("service: failed to remove payment proof of rolled back checkout")
	}
}

func hasUpload(u *Upload) bool {
	return u != nil && u.Content != nil
}

// generateQR writes the per-order QR code shown on the success page. Failure does not undo the order.
func (s *service) generateQR(o *order.Order) {
	payload := fmt.Sprintf("order:%s;total:%s", o.ID, o.TotalPrice.StringFixed(2))
	if _, err := s.media.GenerateOrderQR(o.ID, payload); err != nil {
		log.Error().Err(err).Stringer("order_id", o.ID).Msg("service: failed to generate order QR code")
	}
}

func (s *service) Success(ctx context.Context, userID, orderID uuid.UUID) (*Placement, error) {
	o, err := s.orders.GetForUser(ctx, orderID, userID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			log.Warn().Stringer("order_id", orderID).Stringer("user_id", userID).Msg("service: success page for unknown order")
			return nil, order.ErrOrderNotFound
		}
		log.Error().Err(err).Stringer("order_id", orderID).Msg("service: failed to load order for success page")
		return nil, fmt.Errorf("service: failed to load order: %w", err)
	}
	return &Placement{Order: o, QRCodeURL: s.media.URL(media.OrderQRPath(o.ID))}, nil
}
