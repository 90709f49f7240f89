// Package requirements validates and applies vendor changes to posted demand.
// Requirements can only change while the bidding window is closed.
package requirements

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
	"github.com/xtrntr/supplylink/internal/window"
)

// Store is the part of the data store the requirement coordinator needs
type Store interface {
	GetRequirementsByState(ctx context.Context, state string) ([]models.Requirement, error)
	GetRequirement(ctx context.Context, id string) (*models.Requirement, error)
	CreateRequirement(ctx context.Context, req *models.Requirement) (*models.Requirement, error)
	UpdateRequirement(ctx context.Context, id string, patch models.RequirementPatch) (*models.Requirement, error)
	DeleteRequirement(ctx context.Context, id string) error
}

// Draft is a validated new requirement
type Draft struct {
	Item     string
	Quantity decimal.Decimal
	Unit     models.Unit
	Price    decimal.Decimal
}

// ParseDraft validates raw form input. Quantity and price must be positive numbers.
func ParseDraft(item, quantity, unit, price string) (Draft, error) {
	var d Draft
	var err error
	if d.Item, err = parseItem(item); err != nil {
		return Draft{}, err
	}
	if d.Quantity, err = parsePositive("quantity", quantity); err != nil {
		return Draft{}, err
	}
	if d.Unit, err = models.ParseUnit(strings.TrimSpace(unit)); err != nil {
		return Draft{}, fmt.Errorf("%w: %v", market.ErrInvalidInput, err)
	}
	if d.Price, err = parsePositive("price", price); err != nil {
		return Draft{}, err
	}
	return d, nil
}

// RawPatch is unvalidated edit input; nil fields are left unchanged
type RawPatch struct {
	Item     *string `json:"item,omitempty"`
	Quantity *string `json:"quantity,omitempty"`
	Unit     *string `json:"unit,omitempty"`
	Price    *string `json:"price,omitempty"`
}

// ParsePatch validates edit input the same way ParseDraft validates new requirements
func ParsePatch(raw RawPatch) (models.RequirementPatch, error) {
	var p models.RequirementPatch
	if raw.Item != nil {
		item, err := parseItem(*raw.Item)
		if err != nil {
			return p, err
		}
		p.Item = &item
	}
	if raw.Quantity != nil {
		q, err := parsePositive("quantity", *raw.Quantity)
		if err != nil {
			return p, err
		}
		p.Quantity = &q
	}
	if raw.Unit != nil {
		u, err := models.ParseUnit(strings.TrimSpace(*raw.Unit))
		if err != nil {
			return p, fmt.Errorf("%w: %v", market.ErrInvalidInput, err)
		}
		p.Unit = &u
	}
	if raw.Price != nil {
		pr, err := parsePositive("price", *raw.Price)
		if err != nil {
			return p, err
		}
		p.Price = &pr
	}
	if p.Item == nil && p.Quantity == nil && p.Unit == nil && p.Price == nil {
		return p, fmt.Errorf("%w: nothing to update", market.ErrInvalidInput)
	}
	return p, nil
}

func parseItem(s string) (string, error) {
	item := strings.TrimSpace(s)
	if item == "" {
		return "", fmt.Errorf("%w: item is required", market.ErrInvalidInput)
	}
	return item, nil
}

func parsePositive(field, s string) (decimal.Decimal, error) {
	v, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s %q is not a number", market.ErrInvalidInput, field, s)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive", market.ErrInvalidInput, field)
	}
	return v, nil
}

// CheckCreate reports whether id may post a requirement at now
func CheckCreate(policy *window.Policy, now time.Time, id models.Identity) error {
	if id.Role != models.RoleVendor {
		return fmt.Errorf("%w: only vendors post requirements", market.ErrForbiddenRole)
	}
	if policy.IsOpen(now) {
		return market.ErrWindowOpen
	}
	if id.State == "" || id.Pincode == "" {
		return market.ErrProfileIncomplete
	}
	return nil
}

// CheckMutation reports whether userID may edit or delete req at now.
// A closed requirement is rejected before ownership is considered.
func CheckMutation(policy *window.Policy, now time.Time, userID string, req models.Requirement) error {
	if policy.IsOpen(now) {
		return market.ErrWindowOpen
	}
	if req.Status != models.StatusOpen {
		return market.ErrRequirementClosed
	}
	if req.OwnerID != userID {
		return market.ErrNotOwner
	}
	return nil
}

// Service coordinates requirement changes
type Service struct {
	Store  Store
	Policy *window.Policy
	Logger *slog.Logger
}

// NewService creates a new requirement coordinator
func NewService(store Store, policy *window.Policy, logger *slog.Logger) *Service {
	return &Service{Store: store, Policy: policy, Logger: logger}
}

// Create posts a new open requirement for the vendor in their own state and pincode
func (s *Service) Create(ctx context.Context, now time.Time, id models.Identity, draft Draft) (*models.Requirement, error) {
	if err := CheckCreate(s.Policy, now, id); err != nil {
		return nil, err
	}
	if err := s.checkUnit(ctx, id.State, draft.Item, draft.Unit, ""); err != nil {
		return nil, err
	}

	created, err := s.Store.CreateRequirement(ctx, &models.Requirement{
		OwnerID:  id.UserID,
		Item:     draft.Item,
		Quantity: draft.Quantity,
		Unit:     draft.Unit,
		Price:    draft.Price,
		Pincode:  id.Pincode,
		State:    id.State,
		Status:   models.StatusOpen,
	})
	if err != nil {
		return nil, s.storeFailure("create requirement", err)
	}

	s.Logger.Info("requirement created", "id", created.ID, "owner_id", id.UserID, "item", created.Item, "state", created.State)
	return created, nil
}

// Update edits an open requirement owned by id
func (s *Service) Update(ctx context.Context, now time.Time, id models.Identity, reqID string, patch models.RequirementPatch) (*models.Requirement, error) {
	current, err := s.load(ctx, now, id, reqID)
	if err != nil {
		return nil, err
	}

	next := patch.Apply(*current)
	if next.Item != current.Item || next.Unit != current.Unit {
		if err := s.checkUnit(ctx, current.State, next.Item, next.Unit, current.ID); err != nil {
			return nil, err
		}
	}

	updated, err := s.Store.UpdateRequirement(ctx, reqID, patch)
	if err != nil {
		return nil, s.storeFailure("update requirement", err)
	}

	s.Logger.Info("requirement updated", "id", reqID, "owner_id", id.UserID)
	return updated, nil
}

// Remove deletes an open requirement owned by id
func (s *Service) Remove(ctx context.Context, now time.Time, id models.Identity, reqID string) error {
	if _, err := s.load(ctx, now, id, reqID); err != nil {
		return err
	}
	if err := s.Store.DeleteRequirement(ctx, reqID); err != nil {
		return s.storeFailure("delete requirement", err)
	}

	s.Logger.Info("requirement deleted", "id", reqID, "owner_id", id.UserID)
	return nil
}

// load fetches the requirement and checks id may change it at now
func (s *Service) load(ctx context.Context, now time.Time, id models.Identity, reqID string) (*models.Requirement, error) {
	// The window check needs no data, so it runs before the store is touched
	if s.Policy.IsOpen(now) {
		return nil, market.ErrWindowOpen
	}
	req, err := s.Store.GetRequirement(ctx, reqID)
	if err != nil {
		return nil, s.storeFailure("load requirement", err)
	}
	if err := CheckMutation(s.Policy, now, id.UserID, *req); err != nil {
		return nil, err
	}
	return req, nil
}

// checkUnit rejects a unit that differs from the unit other open requirements use for item in state
func (s *Service) checkUnit(ctx context.Context, state, item string, unit models.Unit, exceptID string) error {
	reqs, err := s.Store.GetRequirementsByState(ctx, state)
	if err != nil {
		return s.storeFailure("load requirements", err)
	}
	for _, r := range reqs {
		if r.ID == exceptID || r.Status != models.StatusOpen || r.Item != item {
			continue
		}
		if r.Unit != unit {
			return fmt.Errorf("%w: %s is posted in %s", market.ErrUnitMismatch, item, r.Unit)
		}
	}
	return nil
}

func (s *Service) storeFailure(op string, err error) error {
	// Conditions the store itself enforces pass through unchanged
	if errors.Is(err, market.ErrNotFound) || errors.Is(err, market.ErrRequirementClosed) {
		return err
	}
	s.Logger.Error("requirement store call failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", market.ErrNetworkFailure, op, err)
}
