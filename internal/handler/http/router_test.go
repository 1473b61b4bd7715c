package http_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	handler "github.com/vasiliy-maslov/storefront/internal/handler/http"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
)

func sessionCookie(t *testing.T, userID uuid.UUID, isAdmin bool) *http.Cookie {
	t.Helper()
	token, err := testTokens.Issue(userID, "tester", "tester@example.com", isAdmin)
	require.NoError(t, err)
	return &http.Cookie{Name: auth.CookieName, Value: token}
}

// fetchCSRFToken returns the token and the cookies that must accompany it.
func fetchCSRFToken(t *testing.T, router http.Handler, session *http.Cookie) (string, []*http.Cookie) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/csrf-token", nil)
	req.AddCookie(session)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp handler.CSRFTokenResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token, rr.Result().Cookies()
}

func TestRouter_Health(t *testing.T) {
	rr := httptest.NewRecorder()
	newRouter().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestRouter_CSRF_CookieSessions(t *testing.T) {
	adminID := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())
	path := "/admin/orders/" + orderID.String() + "/status"

	t.Run("rejects_missing_token", func(t *testing.T) {
		mockOrders := new(MockOrderService)
		router := newRouter(handler.NewAdminHandler(mockOrders))

		req := postForm(path, url.Values{"status": {"Processing"}})
		req.AddCookie(sessionCookie(t, adminID, true))
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		require.Equal(t, http.StatusForbidden, rr.Code)
		assert.JSONEq(t, `{"error":"CSRF token missing or invalid"}`, rr.Body.String())
		mockOrders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("accepts_header_token", func(t *testing.T) {
		mockOrders := new(MockOrderService)
		router := newRouter(handler.NewAdminHandler(mockOrders))
		session := sessionCookie(t, adminID, true)
		mockOrders.On("UpdateStatus", mock.Anything, orderID, "Processing").
			Return(&order.Order{ID: orderID, Status: order.StatusProcessing}, nil).Once()

		token, cookies := fetchCSRFToken(t, router, session)

		req := postForm(path, url.Values{"status": {"Processing"}})
		req.AddCookie(session)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		req.Header.Set(handler.CSRFHeader, token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockOrders.AssertExpectations(t)
	})

	t.Run("accepts_form_token", func(t *testing.T) {
		mockOrders := new(MockOrderService)
		router := newRouter(handler.NewAdminHandler(mockOrders))
		session := sessionCookie(t, adminID, true)
		mockOrders.On("UpdateStatus", mock.Anything, orderID, "Shipped").
			Return(&order.Order{ID: orderID, Status: order.StatusShipped}, nil).Once()

		token, cookies := fetchCSRFToken(t, router, session)

		req := postForm(path, url.Values{"status": {"Shipped"}, handler.CSRFField: {token}})
		req.AddCookie(session)
		for _, c := range cookies {
			req.AddCookie(c)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		mockOrders.AssertExpectations(t)
	})
}

func TestRouter_CSRF_GatewayCallbackExempt(t *testing.T) {
	userID := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())
	router, _, mockVerifier := newCheckoutRouter()
	mockVerifier.On("Verify", mock.Anything, payment.VerifyRequest{UserID: userID, Token: "tok", Amount: 2448}).
		Return(&order.Order{ID: orderID, Status: order.StatusProcessing}, nil).Once()

	req := postForm("/verify-khalti/", url.Values{"token": {"tok"}, "amount": {"2448"}})
	req.AddCookie(sessionCookie(t, userID, false))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"success":true,"order_id":"`+orderID.String()+`"}`, rr.Body.String())
}
