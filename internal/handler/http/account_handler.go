package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/review"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=150"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	Next     string `json:"next,omitempty"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type ProfileResponse struct {
	User    UserResponse    `json:"user"`
	Profile *user.Profile   `json:"profile"`
	Orders  []order.Order   `json:"orders"`
	Reviews []review.Review `json:"reviews"`
	Message string          `json:"message,omitempty"`
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		IsAdmin:   u.IsAdmin,
		CreatedAt: u.CreatedAt,
	}
}

type AccountHandler struct {
	users         user.Service
	orders        order.Service
	reviews       review.Service
	tokens        *auth.Manager
	validate      *validator.Validate
	secureCookies bool
}

func NewAccountHandler(users user.Service, orders order.Service, reviews review.Service, tokens *auth.Manager, secureCookies bool) *AccountHandler {
	return &AccountHandler{
		users:         users,
		orders:        orders,
		reviews:       reviews,
		tokens:        tokens,
		validate:      validator.New(),
		secureCookies: secureCookies,
	}
}

func (h *AccountHandler) RegisterRoutes(router chi.Router) {
	router.Post("/register", h.handleRegister)
	router.Get("/login", h.handleLoginPage)
	router.Post("/login", h.handleLogin)
	router.Post("/logout", h.handleLogout)

	router.Group(func(r chi.Router) {
		r.Use(auth.RequireUser)
		r.Get("/profile", h.handleProfile)
		r.Post("/profile", h.handleUpdateProfile)
	})
}

func (h *AccountHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if isJSON(r) {
		if err := decodeJSON(r, &req); err != nil {
			log.Warn().Err(err).Msg("handler: failed to decode register request")
			respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	} else {
		req = RegisterRequest{
			Username: r.FormValue("username"),
			Email:    r.FormValue("email"),
			Password: r.FormValue("password"),
		}
	}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithValidation(w, formatValidationErrors(validationErrors))
			return
		}
		log.Error().Err(err).Msg("handler: unexpected validation failure")
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		return
	}

	created, err := h.users.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		statusCode := mapErrorToStatusCode(err)
		if errors.Is(err, user.ErrUserExists) {
			respondWithError(w, statusCode, "Username or email already exists")
			return
		}
		log.Error().Err(err).Msg("handler: failed to register user")
		respondWithError(w, statusCode, "Failed to register user")
		return
	}

	respondWithJSON(w, http.StatusCreated, toUserResponse(created))
}

func (h *AccountHandler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Please log in to continue.",
		"next":    safeNext(r.URL.Query().Get("next"), ""),
	})
}

func (h *AccountHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if isJSON(r) {
		if err := decodeJSON(r, &req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
	} else {
		req = LoginRequest{
			Username: r.FormValue("username"),
			Password: r.FormValue("password"),
			Next:     r.FormValue("next"),
		}
	}

	if err := h.validate.Struct(req); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			respondWithValidation(w, formatValidationErrors(validationErrors))
			return
		}
		respondWithError(w, http.StatusInternalServerError, "Internal validation error")
		return
	}

	u, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, user.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, "Invalid username or password")
			return
		}
		log.Error().Err(err).Msg("handler: failed to authenticate user")
		respondWithError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}

	token, err := h.tokens.Issue(u.ID, u.Username, u.Email, u.IsAdmin)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", u.ID).Msg("handler: failed to issue session token")
		respondWithError(w, http.StatusInternalServerError, "Failed to log in")
		return
	}
	h.tokens.SetSessionCookie(w, token, h.secureCookies)

	if req.Next != "" {
		http.Redirect(w, r, safeNext(req.Next, "/products"), http.StatusSeeOther)
		return
	}
	respondWithJSON(w, http.StatusOK, SessionResponse{Token: token, User: toUserResponse(u)})
}

func (h *AccountHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearSessionCookie(w)
	redirectWithFlash(w, r, "/products", "You have been logged out.")
}

func (h *AccountHandler) handleProfile(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	ctx := r.Context()

	u, err := h.users.GetUserByID(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("handler: failed to load user for profile")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to load profile")
		return
	}
	profile, err := h.users.GetProfile(ctx, userID)
	if err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("handler: failed to load profile")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to load profile")
		return
	}
	orders, err := h.orders.ListOrdersForUser(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load orders")
		return
	}
	reviews, err := h.reviews.ListForUser(ctx, userID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to load reviews")
		return
	}

	respondWithJSON(w, http.StatusOK, ProfileResponse{
		User:    toUserResponse(u),
		Profile: profile,
		Orders:  orders,
		Reviews: reviews,
		Message: popFlash(w, r),
	})
}

func (h *AccountHandler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID := currentUserID(r)
	update := user.ProfileUpdate{
		PhoneNumber: r.FormValue("phone_number"),
		Address:     r.FormValue("address"),
	}

	if _, err := h.users.UpdateProfile(r.Context(), userID, update); err != nil {
		log.Error().Err(err).Stringer("user_id", userID).Msg("handler: failed to update profile")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to update profile")
		return
	}
	redirectWithFlash(w, r, "/profile", "Your profile has been updated.")
}
