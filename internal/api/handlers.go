package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/cxy630/ai-subscription-butler/internal/auth"
	"github.com/cxy630/ai-subscription-butler/internal/core"
	"github.com/cxy630/ai-subscription-butler/internal/store"
)

const tokenTTL = 24 * time.Hour

type contextKey string

const userIDKey contextKey = "userID"

type APIHandler struct {
	store     *store.SQLiteStore
	assistant *core.Assistant
	jwtSecret []byte
	log       zerolog.Logger
}

func NewAPIHandler(s *store.SQLiteStore, a *core.Assistant, jwtSecret []byte, log zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:     s,
		assistant: a,
		jwtSecret: jwtSecret,
		log:       log.With().Str("component", "api").Logger(),
	}
}

func (h *APIHandler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		userID, err := auth.ValidateJWT(h.jwtSecret, tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		user, err := h.store.GetUserByID(userID)
		if err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("failed to resolve user identity")
			http.Error(w, "Failed to process user identity", http.StatusInternalServerError)
			return
		}
		if user == nil {
			http.Error(w, "User not found", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, user.ID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

func (h *APIHandler) SignupHandler(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	existing, err := h.store.GetUserByEmail(req.Email)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to check existing user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "Email is already registered", http.StatusConflict)
		return
	}

	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to hash password")
		http.Error(w, "Failed to process password", http.StatusInternalServerError)
		return
	}

	user, err := h.store.CreateUser(req.Email, hashedPassword, req.Name)
	if err != nil {
		h.log.Error().Err(err).Str("email", req.Email).Msg("failed to create user")
		http.Error(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.store.GetUserByEmail(req.Email)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to load user for login")
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	if user == nil || !auth.CheckPasswordHash(req.Password, user.PasswordHash) {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateJWT(h.jwtSecret, user.ID, tokenTTL)
	if err != nil {
		h.log.Error().Err(err).Msg("failed to generate token")
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, LoginResponse{Token: token, User: user})
}

type SubscriptionRequest struct {
	ServiceName     string     `json:"service_name"`
	Price           float64    `json:"price"`
	Currency        string     `json:"currency"`
	BillingCycle    string     `json:"billing_cycle"`
	Category        string     `json:"category"`
	Status          string     `json:"status"`
	NextBillingDate *time.Time `json:"next_billing_date"`
	Notes           string     `json:"notes"`
}

func (req *SubscriptionRequest) validate() string {
	if req.ServiceName == "" {
		return "Service name is required"
	}
	if req.Price < 0 {
		return "Price cannot be negative"
	}
	switch req.BillingCycle {
	case "", store.CycleDaily, store.CycleWeekly, store.CycleMonthly, store.CycleYearly, store.CycleLifetime:
	default:
		return "Invalid billing cycle"
	}
	switch req.Status {
	case "", store.StatusActive, store.StatusPaused, store.StatusCancelled:
	default:
		return "Invalid status"
	}
	return ""
}

func (h *APIHandler) CreateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	sub := store.Subscription{
		UserID:          userID,
		ServiceName:     req.ServiceName,
		Price:           req.Price,
		Currency:        req.Currency,
		BillingCycle:    req.BillingCycle,
		Category:        req.Category,
		Status:          req.Status,
		NextBillingDate: req.NextBillingDate,
		Notes:           req.Notes,
	}
	if err := h.store.CreateSubscription(&sub); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to create subscription")
		http.Error(w, "Failed to create subscription", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusCreated, sub)
}

func (h *APIHandler) ListSubscriptionsHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	status := r.URL.Query().Get("status")

	subs, err := h.store.GetSubscriptionsByUserID(userID, status)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to list subscriptions")
		http.Error(w, "Failed to list subscriptions", http.StatusInternalServerError)
		return
	}
	if subs == nil {
		subs = []store.Subscription{}
	}
	respondJSON(w, http.StatusOK, subs)
}

func (h *APIHandler) UpdateSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	subID := chi.URLParam(r, "subscriptionID")

	existing, err := h.store.GetSubscriptionByID(subID, userID)
	if err != nil {
		h.log.Error().Err(err).Str("subscription_id", subID).Msg("failed to load subscription")
		http.Error(w, "Failed to update subscription", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "Subscription not found", http.StatusNotFound)
		return
	}

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if msg := req.validate(); msg != "" {
		http.Error(w, msg, http.StatusBadRequest)
		return
	}

	existing.ServiceName = req.ServiceName
	existing.Price = req.Price
	if req.Currency != "" {
		existing.Currency = req.Currency
	}
	if req.BillingCycle != "" {
		existing.BillingCycle = req.BillingCycle
	}
	if req.Category != "" {
		existing.Category = req.Category
	}
	if req.Status != "" {
		existing.Status = req.Status
	}
	existing.NextBillingDate = req.NextBillingDate
	existing.Notes = req.Notes

	if err := h.store.UpdateSubscription(existing); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("subscription_id", subID).Msg("failed to update subscription")
		http.Error(w, "Failed to update subscription", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, existing)
}

func (h *APIHandler) DeleteSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())
	subID := chi.URLParam(r, "subscriptionID")

	if err := h.store.DeleteSubscription(subID, userID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("subscription_id", subID).Msg("failed to delete subscription")
		http.Error(w, "Failed to delete subscription", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type OverviewResponse struct {
	MonthlySpending   float64                      `json:"monthly_spending"`
	YearlySpending    float64                      `json:"yearly_spending"`
	SubscriptionCount int                          `json:"subscription_count"`
	CategoryTotals    map[string]core.CategoryStat `json:"category_totals"`
	Subscriptions     []core.SubscriptionInfo      `json:"subscriptions"`
}

func (h *APIHandler) OverviewHandler(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r.Context())

	uc, err := h.store.BuildUserContext(userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("failed to build overview")
		http.Error(w, "Failed to build overview", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, OverviewResponse{
		MonthlySpending:   uc.MonthlySpending,
		YearlySpending:    uc.MonthlySpending * 12,
		SubscriptionCount: len(uc.Subscriptions),
		CategoryTotals:    uc.CategoryTotals,
		Subscriptions:     uc.Subscriptions,
	})
}
