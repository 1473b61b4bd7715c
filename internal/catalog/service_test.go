package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) GetByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) GetBySlug(ctx context.Context, slug string) (*catalog.Product, error) {
	args := m.Called(ctx, slug)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) List(ctx context.Context) ([]catalog.Product, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductRepository) ListCategories(ctx context.Context) ([]catalog.Category, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]catalog.Category), args.Error(1)
}

type memoryCache struct {
	items map[string][]byte
	sets  int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.items[key]
	if !ok {
		return nil, catalog.ErrCacheMiss
	}
	return v, nil
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.items[key] = value
	c.sets++
	return nil
}

func (c *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.items, k)
	}
	return nil
}

func testProduct() *catalog.Product {
	return &catalog.Product{
		ID:           uuid.Must(uuid.NewV4()),
		CategoryID:   uuid.Must(uuid.NewV4()),
		CategoryName: "Gadgets",
		Name:         "Widget",
		Slug:         "widget",
		Price:        decimal.RequireFromString("9.99"),
		Stock:        10,
		Rating:       decimal.RequireFromString("4.5"),
		CreatedAt:    time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2025, 4, 16, 12, 0, 0, 0, time.UTC),
	}
}

func TestCatalogService_GetProduct_CachesAfterFirstLookup(t *testing.T) {
	mockRepo := new(MockProductRepository)
	cache := newMemoryCache()
	svc := catalog.NewService(mockRepo, cache, time.Minute)

	product := testProduct()
	mockRepo.On("GetByID", mock.Anything, product.ID).Return(product, nil).Once()

	first, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	second, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)

	require.Equal(t, 2, cache.sets)
	require.Empty(t, cmp.Diff(*first, *second, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })))
	mockRepo.AssertExpectations(t)
}

func TestCatalogService_GetProduct_WithoutCache(t *testing.T) {
	mockRepo := new(MockProductRepository)
	svc := catalog.NewService(mockRepo, nil, 0)

	product := testProduct()
	mockRepo.On("GetByID", mock.Anything, product.ID).Return(product, nil).Twice()

	_, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	_, err = svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)

	mockRepo.AssertExpectations(t)
}

func TestCatalogService_GetProduct_NotFound(t *testing.T) {
	mockRepo := new(MockProductRepository)
	svc := catalog.NewService(mockRepo, newMemoryCache(), time.Minute)

	id := uuid.Must(uuid.NewV4())
	mockRepo.On("GetByID", mock.Anything, id).Return(nil, catalog.ErrProductNotFound).Once()

	p, err := svc.GetProduct(context.Background(), id)
	require.ErrorIs(t, err, catalog.ErrProductNotFound)
	require.Nil(t, p)
	mockRepo.AssertExpectations(t)
}

func TestCatalogService_InvalidateProduct(t *testing.T) {
	mockRepo := new(MockProductRepository)
	cache := newMemoryCache()
	svc := catalog.NewService(mockRepo, cache, time.Minute)

	product := testProduct()
	mockRepo.On("GetByID", mock.Anything, product.ID).Return(product, nil).Twice()

	_, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)
	svc.InvalidateProduct(context.Background(), product.ID)
	_, err = svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)

	mockRepo.AssertExpectations(t)
}

func TestCatalogService_GetProductBySlug_CachesAfterFirstLookup(t *testing.T) {
	mockRepo := new(MockProductRepository)
	cache := newMemoryCache()
	svc := catalog.NewService(mockRepo, cache, time.Minute)

	product := testProduct()
	mockRepo.On("GetBySlug", mock.Anything, "widget").Return(product, nil).Once()

	first, err := svc.GetProductBySlug(context.Background(), "widget")
	require.NoError(t, err)
	second, err := svc.GetProductBySlug(context.Background(), "widget")
	require.NoError(t, err)
	byID, err := svc.GetProduct(context.Background(), product.ID)
	require.NoError(t, err)

	require.Equal(t, product.ID, second.ID)
	require.Empty(t, cmp.Diff(*first, *byID, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })))
	mockRepo.AssertExpectations(t)
	mockRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestCatalogService_InvalidateProduct_ClearsSlugEntry(t *testing.T) {
	mockRepo := new(MockProductRepository)
	cache := newMemoryCache()
	svc := catalog.NewService(mockRepo, cache, time.Minute)

	product := testProduct()
	mockRepo.On("GetBySlug", mock.Anything, "widget").Return(product, nil).Twice()

	_, err := svc.GetProductBySlug(context.Background(), "widget")
	require.NoError(t, err)
	svc.InvalidateProduct(context.Background(), product.ID)
	require.Empty(t, cache.items)

	_, err = svc.GetProductBySlug(context.Background(), "widget")
	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}

func TestCatalogService_ListProducts_RepositoryError(t *testing.T) {
	mockRepo := new(MockProductRepository)
	svc := catalog.NewService(mockRepo, nil, 0)

	mockRepo.On("List", mock.Anything).Return(nil, errors.New("connection refused")).Once()

	products, err := svc.ListProducts(context.Background())
	require.Error(t, err)
	require.Nil(t, products)
	mockRepo.AssertExpectations(t)
}
