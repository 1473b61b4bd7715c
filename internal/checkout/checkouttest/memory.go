// Package checkouttest provides an in-memory checkout unit of work for tests of checkout and
// the packages built on it.
package checkouttest

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/order"
)

var errNotSupported = errors.New("checkouttest: not supported")

type state struct {
	cartItems map[uuid.UUID][]cart.Item
	orders    map[uuid.UUID]*order.Order
}

func newState() *state {
	return &state{
		cartItems: make(map[uuid.UUID][]cart.Item),
		orders:    make(map[uuid.UUID]*order.Order),
	}
}

func (s *state) clone() *state {
	c := newState()
	for userID, items := range s.cartItems {
		c.cartItems[userID] = append([]cart.Item(nil), items...)
	}
	for id, o := range s.orders {
		cp := *o
		cp.Items = append([]order.Item(nil), o.Items...)
		c.orders[id] = &cp
	}
	return c
}

// UnitOfWork applies fn to a private copy of the state and swaps it in only when fn succeeds.
// Calls are serialized, mirroring the per-user row lock.
type UnitOfWork struct {
	mu    sync.Mutex
	state *state

	FailCreate error
	FailClear  error
	Calls      int
}

func NewUnitOfWork() *UnitOfWork {
	return &UnitOfWork{state: newState()}
}

func (u *UnitOfWork) Do(ctx context.Context, userID uuid.UUID, fn func(tx checkout.Tx) error) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.Calls++
	work := u.state.clone()
	tx := &memoryTx{
		cart:   &CartRepository{uow: u, view: work, failClear: u.FailClear},
		orders: &OrderRepository{uow: u, view: work, failCreate: u.FailCreate},
	}
	if err := fn(tx); err != nil {
		return err
	}
	u.state = work
	return nil
}

// CartRepository returns a repository over the committed state.
func (u *UnitOfWork) CartRepository() *CartRepository {
	return &CartRepository{uow: u}
}

// OrderRepository returns a repository over the committed state.
func (u *UnitOfWork) OrderRepository() *OrderRepository {
	return &OrderRepository{uow: u}
}

func (u *UnitOfWork) AddToCart(userID uuid.UUID, item cart.Item) cart.Item {
	u.mu.Lock()
	defer u.mu.Unlock()
	if item.ID == uuid.Nil {
		item.ID = uuid.Must(uuid.NewV4())
	}
	if item.ProductID == uuid.Nil {
		item.ProductID = uuid.Must(uuid.NewV4())
	}
	item.UserID = userID
	u.state.cartItems[userID] = append(u.state.cartItems[userID], item)
	return item
}

func (u *UnitOfWork) CartFor(userID uuid.UUID) []cart.Item {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]cart.Item{}, u.state.cartItems[userID]...)
}

func (u *UnitOfWork) OrdersFor(userID uuid.UUID) []order.Order {
	u.mu.Lock()
	defer u.mu.Unlock()
	result := make([]order.Order, 0)
	for _, o := range u.state.orders {
		if o.UserID == userID {
			result = append(result, *o)
		}
	}
	return result
}

type memoryTx struct {
	cart   cart.Repository
	orders order.Repository
}

func (t *memoryTx) Cart() cart.Repository    { return t.cart }
func (t *memoryTx) Orders() order.Repository { return t.orders }

// CartRepository reads either a transaction's working copy (view) or the committed state.
type CartRepository struct {
	uow       *UnitOfWork
	view      *state
	failClear error
}

func (r *CartRepository) with(fn func(s *state)) {
	if r.view != nil {
		fn(r.view)
		return
	}
	r.uow.mu.Lock()
	defer r.uow.mu.Unlock()
	fn(r.uow.state)
}

func (r *CartRepository) AddOrIncrement(ctx context.Context, userID, productID uuid.UUID, quantity int) (*cart.Item, error) {
	return nil, errNotSupported
}

func (r *CartRepository) Delete(ctx context.Context, userID, itemID uuid.UUID) error {
	return errNotSupported
}

func (r *CartRepository) DeleteMany(ctx context.Context, userID uuid.UUID, itemIDs []uuid.UUID) (int64, error) {
	return 0, errNotSupported
}

func (r *CartRepository) AdjustQuantity(ctx context.Context, userID, itemID uuid.UUID, delta int) (int, error) {
	return 0, errNotSupported
}

func (r *CartRepository) ListForUser(ctx context.Context, userID uuid.UUID) ([]cart.Item, error) {
	var items []cart.Item
	r.with(func(s *state) {
		items = append([]cart.Item{}, s.cartItems[userID]...)
	})
	return items, nil
}

func (r *CartRepository) ClearForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	if r.failClear != nil {
		return 0, r.failClear
	}
	var n int64
	r.with(func(s *state) {
		n = int64(len(s.cartItems[userID]))
		delete(s.cartItems, userID)
	})
	return n, nil
}

type OrderRepository struct {
	uow        *UnitOfWork
	view       *state
	failCreate error
}

func (r *OrderRepository) with(fn func(s *state)) {
	if r.view != nil {
		fn(r.view)
		return
	}
	r.uow.mu.Lock()
	defer r.uow.mu.Unlock()
	fn(r.uow.state)
}

func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	if r.failCreate != nil {
		return r.failCreate
	}
	cp := *o
	cp.Items = append([]order.Item(nil), o.Items...)
	r.with(func(s *state) {
		s.orders[o.ID] = &cp
	})
	return nil
}

func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	var found *order.Order
	r.with(func(s *state) {
		if o, ok := s.orders[id]; ok {
			cp := *o
			found = &cp
		}
	})
	if found == nil {
		return nil, order.ErrOrderNotFound
	}
	return found, nil
}

func (r *OrderRepository) GetForUser(ctx context.Context, orderID, userID uuid.UUID) (*order.Order, error) {
	o, err := r.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]order.Order, error) {
	return r.uow.OrdersFor(userID), nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID uuid.UUID, newStatus order.Status) error {
	return errNotSupported
}

func (r *OrderRepository) HasDeliveredProduct(ctx context.Context, userID, productID uuid.UUID) (bool, error) {
	return false, errNotSupported
}

// Media records saved proofs and generated QR codes without touching the filesystem.
type Media struct {
	mu       sync.Mutex
	Proofs   []string
	Removed  []string
	QROrders []uuid.UUID

	FailProof  error
	FailQRCode error
}

func (m *Media) URL(rel string) string {
	return "/media/" + rel
}

func (m *Media) SavePaymentProof(filename string, r io.Reader) (string, error) {
	if m.FailProof != nil {
		return "", m.FailProof
	}
	if _, err := io.ReadAll(r); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rel := "payment_proofs/1_" + filename
	m.Proofs = append(m.Proofs, rel)
	return rel, nil
}

func (m *Media) Remove(rel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Removed = append(m.Removed, rel)
	return nil
}

func (m *Media) GenerateOrderQR(orderID uuid.UUID, payload string) (string, error) {
	if m.FailQRCode != nil {
		return "", m.FailQRCode
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.QROrders = append(m.QROrders, orderID)
	return "qr_codes/order_" + orderID.String() + ".png", nil
}
