package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
)

const cartPath = "/cart"

type CartResponse struct {
	*cart.Cart
	Message string `json:"message,omitempty"`
}

type CartHandler struct {
	carts cart.Service
}

func NewCartHandler(carts cart.Service) *CartHandler {
	return &CartHandler{carts: carts}
}

func (h *CartHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Get("/cart", h.handleViewCart)
		r.Post("/add_to_cart/{productID}", h.handleAddToCart)
		r.Post("/remove_from_cart/{itemID}", h.handleRemoveItem)
		r.Post("/update_cart_item/{itemID}", h.handleUpdateItem)
		r.Post("/bulk_delete_cart", h.handleBulkDelete)
	})
}

func (h *CartHandler) handleViewCart(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	c, err := h.carts.ListForUser(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("handler: failed to load cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to load cart")
		return
	}
	respondWithJSON(w, http.StatusOK, CartResponse{Cart: c, Message: popFlash(w, r)})
}

func (h *CartHandler) handleAddToCart(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.FromString(chi.URLParam(r, "productID"))
	if err != nil {
		redirectWithFlash(w, r, cartPath, "Product not found.")
		return
	}
	quantity := cart.NormalizeQuantity(r.FormValue("quantity"))

	item, err := h.carts.AddOrIncrement(r.Context(), currentUserID(r), productID, quantity)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			redirectWithFlash(w, r, cartPath, "Product not found.")
			return
		}
		log.Error().Err(err).Stringer("product_id", productID).Msg("handler: failed to add to cart")
		respondWithError(w, http.StatusInternalServerError, "Failed to add item to cart")
		return
	}

	redirectWithFlash(w, r, cartPath, fmt.Sprintf("%s added to your cart.", item.ProductName))
}

func (h *CartHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.FromString(chi.URLParam(r, "itemID"))
	if err != nil {
		redirectWithFlash(w, r, cartPath, "Cart item not found.")
		return
	}

	if err := h.carts.Remove(r.Context(), currentUserID(r), itemID); err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			redirectWithFlash(w, r, cartPath, "Cart item not found.")
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Failed to remove item")
		return
	}
	http.Redirect(w, r, cartPath, http.StatusSeeOther)
}

func (h *CartHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.FromString(chi.URLParam(r, "itemID"))
	if err != nil {
		redirectWithFlash(w, r, cartPath, "Cart item not found.")
		return
	}
	direction, err := cart.ParseDirection(r.FormValue("action"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Action must be increase or decrease")
		return
	}

	if _, err := h.carts.Adjust(r.Context(), currentUserID(r), itemID, direction); err != nil {
		if errors.Is(err, cart.ErrItemNotFound) {
			redirectWithFlash(w, r, cartPath, "Cart item not found.")
			return
		}
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update item")
		return
	}
	http.Redirect(w, r, cartPath, http.StatusSeeOther)
}

func (h *CartHandler) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid form")
		return
	}

	ids := make([]uuid.UUID, 0, len(r.PostForm["item_ids"]))
	for _, raw := range r.PostForm["item_ids"] {
		id, err := uuid.FromString(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		redirectWithFlash(w, r, cartPath, "No items selected.")
		return
	}

	removed, err := h.carts.RemoveMany(r.Context(), currentUserID(r), ids)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to remove items")
		return
	}
	redirectWithFlash(w, r, cartPath, fmt.Sprintf("Removed %d item(s) from your cart.", removed))
}
