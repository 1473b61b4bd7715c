package http_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	handler "github.com/vasiliy-maslov/storefront/internal/handler/http"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

func TestAdminHandler_UpdateOrderStatus(t *testing.T) {
	adminID := uuid.Must(uuid.NewV4())
	orderID := uuid.Must(uuid.NewV4())

	tests := []struct {
		name       string
		status     string
		setupMock  func(m *MockOrderService)
		wantStatus int
		wantError  string
	}{
		{
			name:   "success",
			status: "Processing",
			setupMock: func(m *MockOrderService) {
				m.On("UpdateStatus", mock.Anything, orderID, "Processing").
					Return(&order.Order{ID: orderID, Status: order.StatusProcessing}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:   "invalid_transition",
			status: "Shipped",
			setupMock: func(m *MockOrderService) {
				m.On("UpdateStatus", mock.Anything, orderID, "Shipped").
					Return(nil, &order.TransitionError{From: order.StatusPending, To: order.StatusShipped}).Once()
			},
			wantStatus: http.StatusConflict,
			wantError:  "cannot move order from Pending to Shipped",
		},
		{
			name:   "unknown_status",
			status: "Teleported",
			setupMock: func(m *MockOrderService) {
				m.On("UpdateStatus", mock.Anything, orderID, "Teleported").Return(nil, order.ErrUnknownStatus).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantError:  "Unknown order status",
		},
		{
			name:   "not_found",
			status: "Cancelled",
			setupMock: func(m *MockOrderService) {
				m.On("UpdateStatus", mock.Anything, orderID, "Cancelled").Return(nil, order.ErrOrderNotFound).Once()
			},
			wantStatus: http.StatusNotFound,
			wantError:  "Order not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockOrders := new(MockOrderService)
			tt.setupMock(mockOrders)
			router := newRouter(handler.NewAdminHandler(mockOrders))

			req := postForm("/admin/orders/"+orderID.String()+"/status", url.Values{"status": {tt.status}})
			req.Header.Set("Authorization", bearer(t, adminID, true))
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			require.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantError != "" {
				var body map[string]string
				require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
				assert.Equal(t, tt.wantError, body["error"])
			}
			mockOrders.AssertExpectations(t)
		})
	}
}

func TestAdminHandler_UpdateOrderStatus_JSONBody(t *testing.T) {
	orderID := uuid.Must(uuid.NewV4())
	mockOrders := new(MockOrderService)
	router := newRouter(handler.NewAdminHandler(mockOrders))

	mockOrders.On("UpdateStatus", mock.Anything, orderID, "delivered").
		Return(&order.Order{ID: orderID, Status: order.StatusDelivered}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/admin/orders/"+orderID.String()+"/status", bytes.NewBufferString(`{"status":"delivered"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, uuid.Must(uuid.NewV4()), true))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	mockOrders.AssertExpectations(t)
}

func TestAdminHandler_ForbidsCustomers(t *testing.T) {
	mockOrders := new(MockOrderService)
	router := newRouter(handler.NewAdminHandler(mockOrders))

	req := postForm("/admin/orders/"+uuid.Must(uuid.NewV4()).String()+"/status", url.Values{"status": {"Shipped"}})
	req.Header.Set("Authorization", bearer(t, uuid.Must(uuid.NewV4()), false))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusForbidden, rr.Code)
	mockOrders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}
