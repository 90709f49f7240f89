// Package bidding validates and submits supplier bids. A supplier holds at
// most one bid per item and state; submitting again replaces it.
package bidding

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

// Store is the part of the data store the bid coordinator needs
type Store interface {
	GetRequirementsByState(ctx context.Context, state string) ([]models.Requirement, error)
	GetBidsByState(ctx context.Context, state string) ([]models.Bid, error)
	UpsertBid(ctx context.Context, bid *models.Bid) (*models.Bid, error)
}

// Service coordinates bid submission
type Service struct {
	Store  Store
	Policy *window.Policy
	Logger *slog.Logger
}

// NewService creates a new bid coordinator
func NewService(store Store, policy *window.Policy, logger *slog.Logger) *Service {
	return &Service{Store: store, Policy: policy, Logger: logger}
}

// Validate checks a bid against the window and the current lowest bid without
// touching the store. Clients use it as an early check; the server repeats it
// with the lowest bid it reads itself.
func Validate(policy *window.Policy, now time.Time, id models.Identity, price decimal.Decimal, currentLowest decimal.NullDecimal) error {
	if id.Role != models.RoleSupplier {
		return fmt.Errorf("%w: only suppliers can bid", market.ErrForbiddenRole)
	}
	if id.State == "" {
		return market.ErrProfileIncomplete
	}
	if !policy.IsOpen(now) {
		return market.ErrWindowClosed
	}
	if currentLowest.Valid && !price.LessThan(currentLowest.Decimal) {
		return fmt.Errorf("%w: current lowest is %s", market.ErrPriceNotCompetitive, currentLowest.Decimal)
	}
	if !price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", market.ErrInvalidInput)
	}
	return nil
}

// Submit places or replaces id's bid on item in id's state. The lowest bid is
// read from the store rather than taken from the caller, and the item must have
// open demand in the state.
func (s *Service) Submit(ctx context.Context, now time.Time, id models.Identity, item string, price decimal.Decimal) (*models.Bid, error) {
	item = strings.TrimSpace(item)
	if item == "" {
		return nil, fmt.Errorf("%w: item is required", market.ErrInvalidInput)
	}
	// Fail fast on checks that need no data
	if err := Validate(s.Policy, now, id, price, decimal.NullDecimal{}); err != nil {
		return nil, err
	}

	reqs, err := s.Store.GetRequirementsByState(ctx, id.State)
	if err != nil {
		return nil, s.storeFailure("load requirements", err)
	}
	bids, err := s.Store.GetBidsByState(ctx, id.State)
	if err != nil {
		return nil, s.storeFailure("load bids", err)
	}

	entry, ok := market.Aggregate(reqs, bids, id.State)[item]
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", market.ErrUnknownItem, item, id.State)
	}
	if err := Validate(s.Policy, now, id, price, entry.LowestBid); err != nil {
		return nil, err
	}

	saved, err := s.Store.UpsertBid(ctx, &models.Bid{
		Item:         item,
		State:        id.State,
		SupplierID:   id.UserID,
		SupplierName: supplierName(id),
		Price:        price,
		UpdatedAt:    now,
	})
	if err != nil {
		return nil, s.storeFailure("save bid", err)
	}

	s.Logger.Info("bid submitted",
		"supplier_id", id.UserID,
		"item", item,
		"state", id.State,
		"price", price.String(),
	)
	return saved, nil
}

func (s *Service) storeFailure(op string, err error) error {
	if errors.Is(err, market.ErrNotFound) {
		return err
	}
	s.Logger.Error("bid store call failed", "op", op, "error", err)
	return fmt.Errorf("%w: %s: %w", market.ErrNetworkFailure, op, err)
}

func supplierName(id models.Identity) string {
	if id.Name == "" {
		return "Anonymous Supplier"
	}
	return id.Name
}
