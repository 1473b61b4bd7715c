package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/review"
)

type CatalogResponse struct {
	Products   []catalog.Product  `json:"products"`
	Categories []catalog.Category `json:"categories"`
}

type ProductPageResponse struct {
	*review.ProductPage
	Message string `json:"message,omitempty"`
}

type ShopHandler struct {
	catalog catalog.Service
	reviews review.Service
}

func NewShopHandler(catalogSvc catalog.Service, reviews review.Service) *ShopHandler {
	return &ShopHandler{catalog: catalogSvc, reviews: reviews}
}

func (h *ShopHandler) RegisterRoutes(router chi.Router) {
	router.Get("/products", h.handleListProducts)
	router.Get("/product/{slug}", h.handleProductPage)
	router.With(auth.RequireUser).Post("/product/{slug}", h.handleSubmitReview)
}

func (h *ShopHandler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.catalog.ListProducts(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list products")
		respondWithError(w, http.StatusInternalServerError, "Failed to list products")
		return
	}
	categories, err := h.catalog.ListCategories(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("handler: failed to list categories")
		respondWithError(w, http.StatusInternalServerError, "Failed to list categories")
		return
	}
	respondWithJSON(w, http.StatusOK, CatalogResponse{Products: products, Categories: categories})
}

func (h *ShopHandler) handleProductPage(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	viewer := uuid.Nil
	if claims, ok := auth.FromContext(r.Context()); ok {
		viewer = claims.UserID
	}

	page, err := h.reviews.ProductPage(r.Context(), slug, viewer)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			respondWithError(w, http.StatusNotFound, "Product not found")
			return
		}
		log.Error().Err(err).Str("slug", slug).Msg("handler: failed to load product page")
		respondWithError(w, http.StatusInternalServerError, "Failed to load product")
		return
	}

	respondWithJSON(w, http.StatusOK, ProductPageResponse{ProductPage: page, Message: popFlash(w, r)})
}

func (h *ShopHandler) handleSubmitReview(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	back := "/product/" + slug

	rating, err := strconv.Atoi(strings.TrimSpace(r.FormValue("rating")))
	if err != nil {
		respondWithValidation(w, map[string]string{"rating": "Rating must be between 1 and 5."})
		return
	}

	_, err = h.reviews.Submit(r.Context(), currentUserID(r), slug, rating, r.FormValue("comment"))
	if err != nil {
		if details, ok := validationDetails(err); ok {
			respondWithValidation(w, details)
			return
		}
		switch {
		case errors.Is(err, review.ErrNotEligible):
			redirectWithFlash(w, r, back, "You can only review products that you have purchased and received.")
		case errors.Is(err, catalog.ErrProductNotFound):
			respondWithError(w, http.StatusNotFound, "Product not found")
		default:
			respondWithError(w, mapErrorToStatusCode(err), "Failed to submit review")
		}
		return
	}

	redirectWithFlash(w, r, back, "Your review has been submitted successfully!")
}
