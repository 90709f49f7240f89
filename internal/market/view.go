package market

import (
	"fmt"

	"github.com/xtrntr/supplylink/internal/models"
	"github.com/xtrntr/supplylink/internal/window"
)

// Snapshot is the raw market data a view is composed from
type Snapshot struct {
	Requirements   []models.Requirement // open and closed requirements of the user's state
	Bids           []models.Bid         // bids of the user's state
	MyRequirements []models.Requirement // requirements owned by the user, any state
}

// View is what one user sees of the market
type View struct {
	Role                models.Role          `json:"role"`
	State               string               `json:"state"`
	Pincode             string               `json:"pincode"`
	Window              window.Status        `json:"window"`
	Demand              Demand               `json:"demand"`
	MyRequirements      []models.Requirement `json:"my_requirements,omitempty"`
	MyBids              []models.Bid         `json:"my_bids,omitempty"`
	CanPostRequirements bool                 `json:"can_post_requirements"`
	CanBid              bool                 `json:"can_bid"`
}

// Compose selects the view for id's role. Vendors get the full demand of
// their state and their own requirements; suppliers get only the items they
// have bid on, each carrying their own bid and a suggested next price.
func Compose(id models.Identity, snap Snapshot, ws window.Status) (View, error) {
	v := View{
		Role:    id.Role,
		State:   id.State,
		Pincode: id.Pincode,
		Window:  ws,
	}
	all := Aggregate(snap.Requirements, snap.Bids, id.State)

	switch id.Role {
	case models.RoleVendor:
		if id.State == "" || id.Pincode == "" {
			return View{}, ErrProfileIncomplete
		}
		v.Demand = all
		v.MyRequirements = snap.MyRequirements
		if v.MyRequirements == nil {
			v.MyRequirements = []models.Requirement{}
		}
		v.CanPostRequirements = !ws.Open
	case models.RoleSupplier:
		v.Demand = Personalize(all, id.UserID, snap.Bids)
		for _, e := range v.Demand.Items() {
			if b, ok := e.BidBy(id.UserID); ok {
				e.MyBid = &b
			}
			suggested := SuggestPrice(e)
			e.SuggestedPrice = &suggested
			v.Demand[e.Item] = e
		}
		v.MyBids = []models.Bid{}
		for _, b := range snap.Bids {
			if b.SupplierID == id.UserID {
				v.MyBids = append(v.MyBids, b)
			}
		}
		v.CanBid = ws.Open
	default:
		return View{}, fmt.Errorf("%w: role %d", ErrForbiddenRole, int(id.Role))
	}
	return v, nil
}
