package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
	"github.com/xtrntr/supplylink/internal/window"
)

// MarketSource is what the live feed reads a state's market from
type MarketSource interface {
	GetRequirementsByState(ctx context.Context, state string) ([]models.Requirement, error)
	GetBidsByState(ctx context.Context, state string) ([]models.Bid, error)
}

// MarketUpdate is the message pushed to live clients
type MarketUpdate struct {
	State  string        `json:"state"`
	Window window.Status `json:"window"`
	Demand market.Demand `json:"demand"`
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// Hub pushes the aggregated demand of a state to the websocket clients watching it
type Hub struct {
	Source MarketSource
	Policy *window.Policy
	Logger *slog.Logger
	Now    func() time.Time

	upgrader  websocket.Upgrader
	clientsMu sync.RWMutex
	clients   map[string]map[*wsClient]bool // by state
}

// NewHub creates a hub. An origin list containing "*" accepts any origin.
func NewHub(source MarketSource, policy *window.Policy, logger *slog.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		Source:  source,
		Policy:  policy,
		Logger:  logger,
		Now:     time.Now,
		clients: map[string]map[*wsClient]bool{},
	}
	h.upgrader = websocket.Upgrader{CheckOrigin: originChecker(allowedOrigins)}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Update builds the current market update for state
func (h *Hub) Update(ctx context.Context, state string) (MarketUpdate, error) {
	reqs, err := h.Source.GetRequirementsByState(ctx, state)
	if err != nil {
		return MarketUpdate{}, err
	}
	bids, err := h.Source.GetBidsByState(ctx, state)
	if err != nil {
		return MarketUpdate{}, err
	}
	return MarketUpdate{
		State:  state,
		Window: h.Policy.Status(h.Now()),
		Demand: market.Aggregate(reqs, bids, state),
	}, nil
}

// Broadcast sends the market of state to every client watching it
func (h *Hub) Broadcast(ctx context.Context, state string) {
	h.clientsMu.RLock()
	watchers := make([]*wsClient, 0, len(h.clients[state]))
	for c := range h.clients[state] {
		watchers = append(watchers, c)
	}
	h.clientsMu.RUnlock()
	if len(watchers) == 0 {
		return
	}

	update, err := h.Update(ctx, state)
	if err != nil {
		h.Logger.Error("failed to load market for broadcast", "state", state, "error", err)
		return
	}
	data, err := json.Marshal(update)
	if err != nil {
		h.Logger.Error("failed to marshal market update", "error", err)
		return
	}

	for _, c := range watchers {
		if err := c.send(data); err != nil {
			h.Logger.Warn("dropping websocket client", "state", state, "error", err)
			h.remove(state, c)
		}
	}
}

// BroadcastAll refreshes every watched state
func (h *Hub) BroadcastAll(ctx context.Context) {
	h.clientsMu.RLock()
	states := make([]string, 0, len(h.clients))
	for s := range h.clients {
		states = append(states, s)
	}
	h.clientsMu.RUnlock()

	for _, s := range states {
		h.Broadcast(ctx, s)
	}
}

// Run broadcasts every interval until ctx is done
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.BroadcastAll(ctx)
		}
	}
}

// ServeWS upgrades the connection and streams the market of the state query parameter
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		writeMessage(w, http.StatusBadRequest, "invalid_input", "state query parameter required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	client := &wsClient{conn: conn}
	h.clientsMu.Lock()
	if h.clients[state] == nil {
		h.clients[state] = map[*wsClient]bool{}
	}
	h.clients[state][client] = true
	h.clientsMu.Unlock()

	// Send initial market
	h.Broadcast(r.Context(), state)

	// Keep connection alive and handle disconnection
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			h.remove(state, client)
			return
		}
	}
}

func (h *Hub) remove(state string, c *wsClient) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if _, ok := h.clients[state][c]; !ok {
		return
	}
	delete(h.clients[state], c)
	if len(h.clients[state]) == 0 {
		delete(h.clients, state)
	}
	c.conn.Close()
}

func (c *wsClient) send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}
