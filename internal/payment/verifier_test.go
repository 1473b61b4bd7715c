package payment_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/checkout/checkouttest"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/payment/khalti"
)

type fixture struct {
	uow      *checkouttest.UnitOfWork
	user     uuid.UUID
	calls    *int32
	verifier payment.Verifier
}

func newFixture(t *testing.T, status int) *fixture {
	t.Helper()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(status)
		if status == http.StatusOK {
			_, _ = w.Write([]byte(`{"idx":"abc123","amount":2448}`))
		}
	}))
	t.Cleanup(server.Close)

	gateway := khalti.NewClient(config.KhaltiConfig{
		SecretKey:   "secret",
		VerifyURL:   server.URL,
		Timeout:     time.Second,
		MaxAttempts: 1,
	})

	uow := checkouttest.NewUnitOfWork()
	carts := cart.NewService(uow.CartRepository())
	checkoutSvc := checkout.NewService(carts, uow.OrderRepository(), uow, &checkouttest.Media{})

	f := &fixture{
		uow:      uow,
		user:     uuid.Must(uuid.NewV4()),
		calls:    &calls,
		verifier: payment.NewVerifier(gateway, carts, checkoutSvc),
	}
	uow.AddToCart(f.user, cart.Item{ProductName: "Widget", UnitPrice: decimal.RequireFromString("9.99"), Quantity: 2})
	uow.AddToCart(f.user, cart.Item{ProductName: "Gadget", UnitPrice: decimal.RequireFromString("4.50"), Quantity: 1})
	return f
}

func TestVerifier_GatewayConfirms(t *testing.T) {
	f := newFixture(t, http.StatusOK)

	o, err := f.verifier.Verify(context.Background(), payment.VerifyRequest{UserID: f.user, Token: "tok", Amount: 2448})
	require.NoError(t, err)

	assert.Equal(t, order.StatusProcessing, o.Status)
	assert.Equal(t, order.MethodKhalti, o.PaymentMethod)
	assert.Equal(t, "24.48", o.TotalPrice.StringFixed(2))
	assert.Len(t, o.Items, 2)
	assert.Empty(t, f.uow.CartFor(f.user))
	assert.Len(t, f.uow.OrdersFor(f.user), 1)
}

func TestVerifier_GatewayRejects(t *testing.T) {
	for _, status := range []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			f := newFixture(t, status)

			o, err := f.verifier.Verify(context.Background(), payment.VerifyRequest{UserID: f.user, Token: "tok", Amount: 2448})
			require.ErrorIs(t, err, payment.ErrVerificationFailed)
			assert.Nil(t, o)
			assert.Len(t, f.uow.CartFor(f.user), 2)
			assert.Empty(t, f.uow.OrdersFor(f.user))
			assert.Zero(t, f.uow.Calls)
		})
	}
}

func TestVerifier_InvalidInputNeverReachesGateway(t *testing.T) {
	tests := []struct {
		name      string
		req       func(user uuid.UUID) payment.VerifyRequest
		wantErrIs error
	}{
		{name: "missing_token", req: func(u uuid.UUID) payment.VerifyRequest {
			return payment.VerifyRequest{UserID: u, Amount: 2448}
		}, wantErrIs: payment.ErrInvalidPayment},
		{name: "zero_amount", req: func(u uuid.UUID) payment.VerifyRequest {
			return payment.VerifyRequest{UserID: u, Token: "tok"}
		}, wantErrIs: payment.ErrInvalidPayment},
		{name: "amount_differs_from_cart", req: func(u uuid.UUID) payment.VerifyRequest {
			return payment.VerifyRequest{UserID: u, Token: "tok", Amount: 1000}
		}, wantErrIs: checkout.ErrAmountMismatch},
		{name: "empty_cart", req: func(u uuid.UUID) payment.VerifyRequest {
			return payment.VerifyRequest{UserID: uuid.Must(uuid.NewV4()), Token: "tok", Amount: 2448}
		}, wantErrIs: checkout.ErrEmptyCart},
		{name: "malformed_phone", req: func(u uuid.UUID) payment.VerifyRequest {
			return payment.VerifyRequest{UserID: u, Token: "tok", Amount: 2448, Delivery: order.Delivery{PhoneNumber: "call me"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, http.StatusOK)

			_, err := f.verifier.Verify(context.Background(), tt.req(f.user))
			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
			} else {
				var validationErr *checkout.ValidationError
				require.ErrorAs(t, err, &validationErr)
				assert.Contains(t, validationErr.Fields, "phone_number")
			}
			assert.Zero(t, atomic.LoadInt32(f.calls))
			assert.Len(t, f.uow.CartFor(f.user), 2)
		})
	}
}

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Verify(ctx context.Context, token string, amount int64) (*khalti.Verification, error) {
	args := m.Called(ctx, token, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*khalti.Verification), args.Error(1)
}

func TestVerifier_UnexpectedGatewayErrorIsWrapped(t *testing.T) {
	uow := checkouttest.NewUnitOfWork()
	carts := cart.NewService(uow.CartRepository())
	checkoutSvc := checkout.NewService(carts, uow.OrderRepository(), uow, &checkouttest.Media{})

	user := uuid.Must(uuid.NewV4())
	uow.AddToCart(user, cart.Item{ProductName: "Widget", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 1})

	gateway := new(MockGateway)
	gateway.On("Verify", mock.Anything, "tok", int64(1000)).Return(nil, errors.New("connection reset")).Once()

	_, err := payment.NewVerifier(gateway, carts, checkoutSvc).Verify(context.Background(), payment.VerifyRequest{UserID: user, Token: "tok", Amount: 1000})
	require.ErrorIs(t, err, payment.ErrVerificationFailed)
	gateway.AssertExpectations(t)
	assert.Len(t, uow.CartFor(user), 1)
}

func TestParseAmount(t *testing.T) {
	n, err := payment.ParseAmount(" 2448 ")
	require.NoError(t, err)
	assert.Equal(t, int64(2448), n)

	for _, raw := range []string{"", "abc", "0", "-5", "24.48"} {
		_, err := payment.ParseAmount(raw)
		assert.ErrorIs(t, err, payment.ErrInvalidPayment, raw)
	}
}
