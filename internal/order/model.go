package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
)

func (s Status) String() string {
	return string(s)
}

var ErrUnknownStatus = errors.New("unknown order status")

// ParseStatus accepts the status names case-insensitively.
func ParseStatus(raw string) (Status, error) {
	trimmed := strings.TrimSpace(raw)
	for _, s := range []Status{StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled} {
		if strings.EqualFold(trimmed, string(s)) {
			return s, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusProcessing: true,
		StatusCancelled:  true,
	},
	StatusProcessing: {
		StatusShipped:   true,
		StatusCancelled: true,
	},
	StatusShipped: {
		StatusDelivered: true,
	},
	StatusDelivered: {},
	StatusCancelled: {},
}

func (s Status) CanTransitionTo(next Status) bool {
	return allowedTransitions[s][next]
}

type PaymentMethod string

const (
	MethodManual PaymentMethod = "manual"
	MethodKhalti PaymentMethod = "khalti"
)

func (m PaymentMethod) String() string {
	return string(m)
}

// RequiresDelivery reports whether the delivery form must be filled before the order is placed.
// Khalti payments are collected up front and delivery details are optional.
func (m PaymentMethod) RequiresDelivery() bool {
	return m != MethodKhalti
}

func (m PaymentMethod) InitialStatus() Status {
	if m == MethodKhalti {
		return StatusProcessing
	}
	return StatusPending
}

type Delivery struct {
	Address     string `json:"delivery_address"`
	PhoneNumber string `json:"phone_number"`
}

type Item struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	UserEmail     string          `json:"-"`
	Delivery      Delivery        `json:"delivery"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	PaymentProof  string          `json:"payment_proof,omitempty"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	Status        Status          `json:"status"`
	Items         []Item          `json:"items"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Line is a cart line captured at checkout time.
type Line struct {
	ProductID   uuid.UUID
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

var ErrNoLines = errors.New("order must contain at least one item")

// NewFromLines snapshots lines into a new order. The total is the exact sum of the line totals.
func NewFromLines(userID uuid.UUID, method PaymentMethod, delivery Delivery, lines []Line) (*Order, error) {
	if len(lines) == 0 {
		return nil, ErrNoLines
	}

	orderID, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("failed to generate order ID: %w", err)
	}

	o := &Order{
		ID:            orderID,
		UserID:        userID,
		Delivery:      delivery,
		PaymentMethod: method,
		Status:        method.InitialStatus(),
		TotalPrice:    decimal.Zero,
		Items:         make([]Item, 0, len(lines)),
	}

	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, fmt.Errorf("order item quantity for product %s must be greater than zero", line.ProductID)
		}
		if line.UnitPrice.IsNegative() {
			return nil, fmt.Errorf("order item price for product %s cannot be negative", line.ProductID)
		}

		itemID, err := uuid.NewV4()
		if err != nil {
			return nil, fmt.Errorf("failed to generate order item ID: %w", err)
		}

		item := Item{
			ID:          itemID,
			OrderID:     orderID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			Price:       line.UnitPrice,
		}
		o.Items = append(o.Items, item)
		o.TotalPrice = o.TotalPrice.Add(item.LineTotal())
	}

	return o, nil
}
