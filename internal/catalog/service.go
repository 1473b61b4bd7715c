package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
)

// ErrCacheMiss is returned by Cache.Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

type Service interface {
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	ListCategories(ctx context.Context) ([]Category, error)
	InvalidateProduct(ctx context.Context, id uuid.UUID)
}

type service struct {
	repo  Repository
	cache Cache
	ttl   time.Duration
}

// NewService wires the catalog. cache may be nil, in which case every lookup goes to the repository.
func NewService(repo Repository, cache Cache, ttl time.Duration) Service {
	return &service{repo: repo, cache: cache, ttl: ttl}
}

func productKey(id uuid.UUID) string {
	return "catalog:product:" + id.String()
}

// slugKey maps a slug to a product ID; the product itself lives under productKey.
func slugKey(slug string) string {
	return "catalog:slug:" + slug
}

func (s *service) GetProduct(ctx context.Context, id uuid.UUID) (*Product, error) {
	if p, ok := s.cachedProduct(ctx, id); ok {
		return p, nil
	}

	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Stringer("product_id", id).Msg("catalog: failed to get product")
		return nil, fmt.Errorf("catalog: failed to get product: %w", err)
	}

	s.storeProduct(ctx, p)
	return p, nil
}

func (s *service) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	if id, ok := s.cachedSlug(ctx, slug); ok {
		if p, ok := s.cachedProduct(ctx, id); ok {
			return p, nil
		}
	}

	p, err := s.repo.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, ErrProductNotFound) {
			return nil, ErrProductNotFound
		}
		log.Error().Err(err).Str("slug", slug).Msg("catalog: failed to get product by slug")
		return nil, fmt.Errorf("catalog: failed to get product by slug: %w", err)
	}

	s.storeProduct(ctx, p)
	return p, nil
}

func (s *service) cachedSlug(ctx context.Context, slug string) (uuid.UUID, bool) {
	if s.cache == nil {
		return uuid.Nil, false
	}
	raw, err := s.cache.Get(ctx, slugKey(slug))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Str("slug", slug).Msg("catalog: cache read failed")
		}
		return uuid.Nil, false
	}
	id, err := uuid.FromString(string(raw))
	if err != nil {
		log.Warn().Str("slug", slug).Msg("catalog: dropping undecodable cache entry")
		return uuid.Nil, false
	}
	return id, true
}

func (s *service) cachedProduct(ctx context.Context, id uuid.UUID) (*Product, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, productKey(id))
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.Warn().Err(err).Stringer("product_id", id).Msg("catalog: cache read failed")
		}
		return nil, false
	}
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Warn().Stringer("product_id", id).Msg("catalog: dropping undecodable cache entry")
		return nil, false
	}
	return &p, true
}

func (s *service) storeProduct(ctx context.Context, p *Product) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(p)
	if err == nil {
		err = s.cache.Set(ctx, productKey(p.ID), raw, s.ttl)
	}
	if err == nil && p.Slug != "" {
		err = s.cache.Set(ctx, slugKey(p.Slug), []byte(p.ID.String()), s.ttl)
	}
	if err != nil {
		log.Warn().Err(err).Stringer("product_id", p.ID).Msg("catalog: cache write failed")
	}
}

func (s *service) ListProducts(ctx context.Context) ([]Product, error) {
	products, err := s.repo.List(ctx)
	if err != nil {
		log.Error().Err(err).Msg("catalog: failed to list products")
		return nil, fmt.Errorf("catalog: failed to list products: %w", err)
	}
	return products, nil
}

func (s *service) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.repo.ListCategories(ctx)
	if err != nil {
		log.Error().Err(err).Msg("catalog: failed to list categories")
		return nil, fmt.Errorf("catalog: failed to list categories: %w", err)
	}
	return categories, nil
}

// InvalidateProduct drops the cached copy, e.g. after a review changes the rating.
func (s *service) InvalidateProduct(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	keys := []string{productKey(id)}
	if p, ok := s.cachedProduct(ctx, id); ok && p.Slug != "" {
		keys = append(keys, slugKey(p.Slug))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		log.Warn().Err(err).Stringer("product_id", id).Msg("catalog: cache invalidation failed")
	}
}
