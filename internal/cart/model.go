package cart

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Direction string

const (
	DirectionIncrease Direction = "increase"
	DirectionDecrease Direction = "decrease"
)

var ErrInvalidDirection = errors.New("cart: direction must be increase or decrease")

func ParseDirection(raw string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(raw))); d {
	case DirectionIncrease, DirectionDecrease:
		return d, nil
	default:
		return "", ErrInvalidDirection
	}
}

func (d Direction) delta() int {
	if d == DirectionDecrease {
		return -1
	}
	return 1
}

// NormalizeQuantity turns submitted form input into a quantity of at least 1.
// Missing, non-numeric and non-positive input all become 1.
func NormalizeQuantity(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// Item is one cart line joined with the live product name and price.
type Item struct {
	ID          uuid.UUID       `json:"id"`
	UserID      uuid.UUID       `json:"user_id"`
	ProductID   uuid.UUID       `json:"product_id"`
	ProductName string          `json:"product_name"`
	ProductSlug string          `json:"product_slug"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Quantity    int             `json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (i Item) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Cart struct {
	Items []Item          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// NewCart computes the running total over items using live prices.
func NewCart(items []Item) *Cart {
	if items == nil {
		items = []Item{}
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.LineTotal())
	}
	return &Cart{Items: items, Total: total}
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}
