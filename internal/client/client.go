// Package client is a session against the SupplyLink API. It checks each
// mutation locally before sending it and merges the server's answer into its
// cached market without refetching.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/supplylink/internal/auth"
	"github.com/xtrntr/supplylink/internal/bidding"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
	"github.com/xtrntr/supplylink/internal/requirements"
	"github.com/xtrntr/supplylink/internal/window"
)

// Client holds one user's session
type Client struct {
	BaseURL string
	HTTP    *http.Client
	Policy  *window.Policy
	Now     func() time.Time

	mu       sync.RWMutex
	token    string
	identity models.Identity
	snap     market.Snapshot
}

// New creates a client for the API at baseURL
func New(baseURL string, policy *window.Policy) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
		Policy:  policy,
		Now:     time.Now,
	}
}

// Identity returns the logged-in user
func (c *Client) Identity() models.Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity
}

// Snapshot returns a copy of the cached market data
func (c *Client) Snapshot() market.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return market.Snapshot{
		Requirements:   append([]models.Requirement(nil), c.snap.Requirements...),
		Bids:           append([]models.Bid(nil), c.snap.Bids...),
		MyRequirements: append([]models.Requirement(nil), c.snap.MyRequirements...),
	}
}

// Register creates an account
func (c *Client) Register(ctx context.Context, reg auth.Registration) error {
	return c.do(ctx, http.MethodPost, "/auth/register", reg, nil)
}

// Login starts a session and loads the user's identity
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.token = resp.Token
	c.mu.Unlock()

	var id models.Identity
	if err := c.do(ctx, http.MethodGet, "/me", nil, &id); err != nil {
		return err
	}
	c.mu.Lock()
	c.identity = id
	c.mu.Unlock()
	return nil
}

// Refresh reloads the requirements and bids of the user's state
func (c *Client) Refresh(ctx context.Context) error {
	id := c.Identity()
	if id.UserID == "" {
		return market.ErrNotAuthenticated
	}

	var snap market.Snapshot
	state := url.PathEscape(id.State)
	if err := c.do(ctx, http.MethodGet, "/requirements/state/"+state, nil, &snap.Requirements); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodGet, "/bids/state/"+state, nil, &snap.Bids); err != nil {
		return err
	}
	if id.Role == models.RoleVendor {
		if err := c.do(ctx, http.MethodGet, "/requirements/mine", nil, &snap.MyRequirements); err != nil {
			return err
		}
	}

	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
	return nil
}

// View composes the user's market view from the cached data
func (c *Client) View() (market.View, error) {
	id := c.Identity()
	if id.UserID == "" {
		return market.View{}, market.ErrNotAuthenticated
	}
	return market.Compose(id, c.Snapshot(), c.Policy.Status(c.Now()))
}

// SubmitBid places or lowers the user's bid on item
func (c *Client) SubmitBid(ctx context.Context, item string, price decimal.Decimal) (*models.Bid, error) {
	id := c.Identity()
	snap := c.Snapshot()
	entry := market.Aggregate(snap.Requirements, snap.Bids, id.State)[strings.TrimSpace(item)]
	if err := bidding.Validate(c.Policy, c.Now(), id, price, entry.LowestBid); err != nil {
		return nil, err
	}

	var bid models.Bid
	body := map[string]string{"item": item, "price": price.String()}
	if err := c.do(ctx, http.MethodPost, "/bids", body, &bid); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.snap.Bids = market.MergeBid(c.snap.Bids, bid)
	c.mu.Unlock()
	return &bid, nil
}

// CreateRequirement posts a new requirement
func (c *Client) CreateRequirement(ctx context.Context, draft requirements.Draft) (*models.Requirement, error) {
	if err := requirements.CheckCreate(c.Policy, c.Now(), c.Identity()); err != nil {
		return nil, err
	}

	var req models.Requirement
	body := map[string]string{
		"item":     draft.Item,
		"quantity": draft.Quantity.String(),
		"unit":     string(draft.Unit),
		"price":    draft.Price.String(),
	}
	if err := c.do(ctx, http.MethodPost, "/requirements", body, &req); err != nil {
		return nil, err
	}

	c.mergeRequirement(req)
	return &req, nil
}

// UpdateRequirement edits one of the user's requirements
func (c *Client) UpdateRequirement(ctx context.Context, reqID string, patch requirements.RawPatch) (*models.Requirement, error) {
	if err := c.checkMutation(reqID); err != nil {
		return nil, err
	}
	if _, err := requirements.ParsePatch(patch); err != nil {
		return nil, err
	}

	var req models.Requirement
	if err := c.do(ctx, http.MethodPut, "/requirements/"+url.PathEscape(reqID), patch, &req); err != nil {
		return nil, err
	}

	c.mergeRequirement(req)
	return &req, nil
}

// DeleteRequirement removes one of the user's requirements
func (c *Client) DeleteRequirement(ctx context.Context, reqID string) error {
	if err := c.checkMutation(reqID); err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, "/requirements/"+url.PathEscape(reqID), nil, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.snap.Requirements = market.RemoveRequirement(c.snap.Requirements, reqID)
	c.snap.MyRequirements = market.RemoveRequirement(c.snap.MyRequirements, reqID)
	c.mu.Unlock()
	return nil
}

// PastDeals fetches closed deals, newest first
func (c *Client) PastDeals(ctx context.Context) ([]models.Deal, error) {
	var deals []models.Deal
	if err := c.do(ctx, http.MethodGet, "/deals", nil, &deals); err != nil {
		return nil, err
	}
	return deals, nil
}

// checkMutation runs the local checks for an edit. A requirement the cache
// does not know is left for the server to judge.
func (c *Client) checkMutation(reqID string) error {
	id := c.Identity()
	now := c.Now()
	if c.Policy.IsOpen(now) {
		return market.ErrWindowOpen
	}
	for _, r := range c.Snapshot().MyRequirements {
		if r.ID == reqID {
			return requirements.CheckMutation(c.Policy, now, id.UserID, r)
		}
	}
	return nil
}

func (c *Client) mergeRequirement(req models.Requirement) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if req.State == c.identity.State {
		c.snap.Requirements = market.MergeRequirement(c.snap.Requirements, req)
	}
	c.snap.MyRequirements = market.MergeRequirement(c.snap.MyRequirements, req)
}

// do sends a JSON request and decodes a JSON response into out.
// Error bodies are turned back into taxonomy errors.
func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%w: %v", market.ErrInvalidInput, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", market.ErrNetworkFailure, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", market.ErrNetworkFailure, method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", market.ErrNetworkFailure, path, err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	var e struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&e); err != nil {
		return fmt.Errorf("%w: status %d", market.ErrNetworkFailure, resp.StatusCode)
	}
	if sentinel := market.FromCode(e.Code); sentinel != nil {
		return fmt.Errorf("%w: %s", sentinel, e.Error)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", market.ErrNotAuthenticated, e.Error)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s", market.ErrNetworkFailure, e.Error)
	}
	return &APIError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
}

// APIError is a server rejection outside the shared error taxonomy
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}
