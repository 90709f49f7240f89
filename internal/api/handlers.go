package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/xtrntr/supplylink/internal/auth"
	"github.com/xtrntr/supplylink/internal/bidding"
	"github.com/xtrntr/supplylink/internal/db"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
	"github.com/xtrntr/supplylink/internal/requirements"
	"github.com/xtrntr/supplylink/internal/window"
)

// Store is the data store the handlers read and write through
type Store interface {
	bidding.Store
	requirements.Store
	GetRequirementsByOwner(ctx context.Context, ownerID string) ([]models.Requirement, error)
}

// DealsReader serves the past deals list
type DealsReader interface {
	GetPastDeals(ctx context.Context) ([]models.Deal, error)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Store        Store
	Deals        DealsReader
	AuthService  *auth.AuthService
	Bids         *bidding.Service
	Requirements *requirements.Service
	Policy       *window.Policy
	Logger       *slog.Logger

	// Now is the clock every window decision is made against
	Now func() time.Time
	// OnChange, if set, is called with the state whose market changed
	OnChange func(state string)
}

// NewHandler creates a new handler
func NewHandler(store Store, deals DealsReader, authService *auth.AuthService, policy *window.Policy, logger *slog.Logger) *Handler {
	return &Handler{
		Store:        store,
		Deals:        deals,
		AuthService:  authService,
		Bids:         bidding.NewService(store, policy, logger),
		Requirements: requirements.NewService(store, policy, logger),
		Policy:       policy,
		Logger:       logger,
		Now:          time.Now,
	}
}

func (h *Handler) changed(state string) {
	if h.OnChange != nil {
		h.OnChange(state)
	}
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.Registration
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}

	user, err := h.AuthService.Register(r.Context(), req)
	if err != nil {
		if errors.Is(err, db.ErrUsernameTaken) {
			writeMessage(w, http.StatusConflict, "username_taken", "Username already taken")
			return
		}
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"role":     user.Role,
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeMessage(w, http.StatusUnauthorized, "not_authenticated", "Invalid credentials")
			return
		}
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// Window reports the bidding window status
func (h *Handler) Window(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Policy.Status(h.Now()))
}

// Health reports whether the server and, when it can tell, the store are up
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.Logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the caller's identity
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	writeJSON(w, http.StatusOK, id)
}

// Market returns the caller's view of their state's market
func (h *Handler) Market(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	ctx := r.Context()

	var snap market.Snapshot
	var err error
	if snap.Requirements, err = h.Store.GetRequirementsByState(ctx, id.State); err != nil {
		h.writeError(w, h.storeFailure("load requirements", err))
		return
	}
	if snap.Bids, err = h.Store.GetBidsByState(ctx, id.State); err != nil {
		h.writeError(w, h.storeFailure("load bids", err))
		return
	}
	if id.Role == models.RoleVendor {
		if snap.MyRequirements, err = h.Store.GetRequirementsByOwner(ctx, id.UserID); err != nil {
			h.writeError(w, h.storeFailure("load own requirements", err))
			return
		}
	}

	view, err := market.Compose(id, snap, h.Policy.Status(h.Now()))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// RequirementsByState lists the requirements posted in a state
func (h *Handler) RequirementsByState(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.Store.GetRequirementsByState(r.Context(), chi.URLParam(r, "state"))
	if err != nil {
		h.writeError(w, h.storeFailure("load requirements", err))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
}

// MyRequirements lists the caller's requirements
func (h *Handler) MyRequirements(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())
	reqs, err := h.Store.GetRequirementsByOwner(r.Context(), id.UserID)
	if err != nil {
		h.writeError(w, h.storeFailure("load own requirements", err))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(reqs))
}

// CreateRequirement posts a new requirement for the calling vendor
func (h *Handler) CreateRequirement(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req struct {
		Item     string `json:"item"`
		Quantity string `json:"quantity"`
		Unit     string `json:"unit"`
		Price    string `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}

	draft, err := requirements.ParseDraft(req.Item, req.Quantity, req.Unit, req.Price)
	if err != nil {
		h.writeError(w, err)
		return
	}

	created, err := h.Requirements.Create(r.Context(), h.Now(), id, draft)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.changed(created.State)
	writeJSON(w, http.StatusCreated, created)
}

// UpdateRequirement edits one of the caller's open requirements
func (h *Handler) UpdateRequirement(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var raw requirements.RawPatch
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}

	patch, err := requirements.ParsePatch(raw)
	if err != nil {
		h.writeError(w, err)
		return
	}

	updated, err := h.Requirements.Update(r.Context(), h.Now(), id, chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.changed(updated.State)
	writeJSON(w, http.StatusOK, updated)
}

// DeleteRequirement removes one of the caller's open requirements
func (h *Handler) DeleteRequirement(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	if err := h.Requirements.Remove(r.Context(), h.Now(), id, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}

	h.changed(id.State)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Requirement deleted"})
}

// BidsByState lists the bids placed in a state
func (h *Handler) BidsByState(w http.ResponseWriter, r *http.Request) {
	bids, err := h.Store.GetBidsByState(r.Context(), chi.URLParam(r, "state"))
	if err != nil {
		h.writeError(w, h.storeFailure("load bids", err))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(bids))
}

// PlaceBid submits or lowers the caller's bid on an item
func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	id, _ := IdentityFrom(r.Context())

	var req struct {
		Item  string `json:"item"`
		Price string `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid_input", "Invalid request body")
		return
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid_input", "Price must be a number")
		return
	}

	bid, err := h.Bids.Submit(r.Context(), h.Now(), id, req.Item, price)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.changed(bid.State)
	writeJSON(w, http.StatusCreated, bid)
}

// PastDeals lists closed deals, newest first
func (h *Handler) PastDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.Deals.GetPastDeals(r.Context())
	if err != nil {
		h.writeError(w, h.storeFailure("load deals", err))
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deals))
}

func (h *Handler) storeFailure(op string, err error) error {
	if market.Code(err) != "" {
		return err
	}
	h.Logger.Error("store call failed", "op", op, "error", err)
	return market.ErrNetworkFailure
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
