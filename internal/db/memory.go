package db

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
)

// Memory is an in-process store with the same semantics as DB.
// It backs tests and the server's memory database driver.
type Memory struct {
	mu           sync.RWMutex
	users        map[string]models.User // by username
	requirements []models.Requirement   // insertion order
	bids         []models.Bid
	deals        []models.Deal
	now          func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		users: map[string]models.User{},
		now:   time.Now,
	}
}

// CreateUser inserts a new user; usernames are unique
func (m *Memory) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Username]; ok {
		return nil, fmt.Errorf("%w: %q", ErrUsernameTaken, user.Username)
	}
	u := *user
	u.ID = uuid.NewString()
	u.CreatedAt = m.now()
	m.users[u.Username] = u
	return &u, nil
}

// GetUserByUsername retrieves a user by username
func (m *Memory) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
	}
	return &u, nil
}

// GetRequirementsByState retrieves every requirement posted in a state
func (m *Memory) GetRequirementsByState(ctx context.Context, state string) ([]models.Requirement, error) {
	return m.filterRequirements(func(r models.Requirement) bool { return r.State == state }), nil
}

// GetRequirementsByOwner retrieves a vendor's requirements
func (m *Memory) GetRequirementsByOwner(ctx context.Context, ownerID string) ([]models.Requirement, error) {
	return m.filterRequirements(func(r models.Requirement) bool { return r.OwnerID == ownerID }), nil
}

func (m *Memory) filterRequirements(keep func(models.Requirement) bool) []models.Requirement {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Requirement{}
	for _, r := range m.requirements {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// GetRequirement retrieves a single requirement
func (m *Memory) GetRequirement(ctx context.Context, id string) (*models.Requirement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	i := m.requirementIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
	}
	r := m.requirements[i]
	return &r, nil
}

// CreateRequirement inserts a new open requirement
func (m *Memory) CreateRequirement(ctx context.Context, req *models.Requirement) (*models.Requirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := *req
	r.ID = uuid.NewString()
	r.Status = models.StatusOpen
	r.CreatedAt = m.now()
	m.requirements = append(m.requirements, r)
	return &r, nil
}

// UpdateRequirement applies a patch to an open requirement
func (m *Memory) UpdateRequirement(ctx context.Context, id string, patch models.RequirementPatch) (*models.Requirement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, err := m.openRequirement(id)
	if err != nil {
		return nil, err
	}
	r := patch.Apply(m.requirements[i])
	m.requirements[i] = r
	return &r, nil
}

// DeleteRequirement removes an open requirement
func (m *Memory) DeleteRequirement(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, err := m.openRequirement(id)
	if err != nil {
		return err
	}
	m.requirements = append(m.requirements[:i], m.requirements[i+1:]...)
	return nil
}

// CloseRequirements marks requirements closed
func (m *Memory) CloseRequirements(ctx context.Context, ids ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if i := m.requirementIndex(id); i >= 0 {
			m.requirements[i].Status = models.StatusClosed
		}
	}
	return nil
}

func (m *Memory) requirementIndex(id string) int {
	for i, r := range m.requirements {
		if r.ID == id {
			return i
		}
	}
	return -1
}

func (m *Memory) openRequirement(id string) (int, error) {
	i := m.requirementIndex(id)
	if i < 0 {
		return -1, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
	}
	if m.requirements[i].Status != models.StatusOpen {
		return -1, market.ErrRequirementClosed
	}
	return i, nil
}

// GetBidsByState retrieves all bids in a state
func (m *Memory) GetBidsByState(ctx context.Context, state string) ([]models.Bid, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Bid{}
	for _, b := range m.bids {
		if b.State == state {
			out = append(out, b)
		}
	}
	return out, nil
}

// UpsertBid inserts a bid or replaces the supplier's bid for the same item and state, keeping its id
func (m *Memory) UpsertBid(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := *bid
	if b.UpdatedAt.IsZero() {
		b.UpdatedAt = m.now()
	}
	for i, existing := range m.bids {
		if existing.SupplierID == b.SupplierID && existing.Item == b.Item && existing.State == b.State {
			b.ID = existing.ID
			m.bids[i] = b
			return &b, nil
		}
	}
	b.ID = uuid.NewString()
	m.bids = append(m.bids, b)
	return &b, nil
}

// CreateDeal records a closed deal
func (m *Memory) CreateDeal(ctx context.Context, deal *models.Deal) (*models.Deal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	d := *deal
	d.ID = uuid.NewString()
	if d.ClosedAt.IsZero() {
		d.ClosedAt = m.now()
	}
	m.deals = append(m.deals, d)
	return &d, nil
}

// GetPastDeals retrieves closed deals, newest first
func (m *Memory) GetPastDeals(ctx context.Context) ([]models.Deal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Deal, len(m.deals))
	copy(out, m.deals)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ClosedAt.After(out[j].ClosedAt) })
	return out, nil
}
