// Package market computes the aggregated demand view of a state's market and
// composes the per-role views built on it.
package market

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/xtrntr/supplylink/internal/models"
)

// Entry is the aggregated demand for one item within a state
type Entry struct {
	Item          string              `json:"item"`
	TotalQuantity decimal.Decimal     `json:"total_quantity"`
	Unit          models.Unit         `json:"unit,omitempty"` // empty when UnitMismatch
	Units         []models.Unit       `json:"units"`
	UnitMismatch  bool                `json:"unit_mismatch"`
	VendorCount   int                 `json:"vendor_count"`
	HighestPrice  decimal.Decimal     `json:"highest_price"`
	LowestBid     decimal.NullDecimal `json:"lowest_bid"` // Valid=false means no bids
	Bids          []models.Bid        `json:"bids"`

	// Filled for suppliers only
	SuggestedPrice *decimal.Decimal `json:"suggested_price,omitempty"`
	MyBid          *models.Bid      `json:"my_bid,omitempty"`
}

// Demand maps item names to their aggregated entry
type Demand map[string]Entry

// Aggregate builds the demand view of state from the full requirement and bid sets.
// Only open requirements of the state contribute; lowest bids consider only bids
// of the same item and state. The result does not depend on input order.
func Aggregate(requirements []models.Requirement, bids []models.Bid, state string) Demand {
	demand := Demand{}
	units := map[string]map[models.Unit]bool{}

	for _, req := range requirements {
		if req.Status != models.StatusOpen || req.State != state {
			continue
		}
		e, ok := demand[req.Item]
		if !ok {
			e = Entry{
				Item:          req.Item,
				TotalQuantity: decimal.Zero,
				HighestPrice:  req.Price,
				Bids:          []models.Bid{},
			}
			units[req.Item] = map[models.Unit]bool{}
		}
		e.TotalQuantity = e.TotalQuantity.Add(req.Quantity)
		e.VendorCount++
		if req.Price.GreaterThan(e.HighestPrice) {
			e.HighestPrice = req.Price
		}
		units[req.Item][req.Unit] = true
		demand[req.Item] = e
	}

	for item, e := range demand {
		e.Units = sortedUnits(units[item])
		if len(e.Units) == 1 {
			e.Unit = e.Units[0]
		} else {
			e.UnitMismatch = true
		}
		demand[item] = e
	}

	for _, bid := range bids {
		if bid.State != state {
			continue
		}
		e, ok := demand[bid.Item]
		if !ok {
			continue
		}
		if !e.LowestBid.Valid || bid.Price.LessThan(e.LowestBid.Decimal) {
			e.LowestBid = decimal.NewNullDecimal(bid.Price)
		}
		e.Bids = append(e.Bids, bid)
		demand[bid.Item] = e
	}

	for item, e := range demand {
		sortBids(e.Bids)
		demand[item] = e
	}
	return demand
}

// Personalize keeps only the items supplierID has bid on
func Personalize(demand Demand, supplierID string, bids []models.Bid) Demand {
	mine := map[string]bool{}
	for _, b := range bids {
		if b.SupplierID == supplierID {
			mine[b.Item] = true
		}
	}

	out := Demand{}
	for item, e := range demand {
		if mine[item] {
			out[item] = e
		}
	}
	return out
}

// Items returns the entries sorted by item name
func (d Demand) Items() []Entry {
	out := make([]Entry, 0, len(d))
	for _, e := range d {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

// BidBy returns supplierID's bid on this entry, if any
func (e Entry) BidBy(supplierID string) (models.Bid, bool) {
	for _, b := range e.Bids {
		if b.SupplierID == supplierID {
			return b, true
		}
	}
	return models.Bid{}, false
}

var (
	bidStep   = decimal.RequireFromString("0.5")
	priceStep = decimal.NewFromInt(1)
)

// SuggestPrice proposes an opening offer: just under the lowest bid, or just
// under the best price vendors expect when nobody has bid yet.
func SuggestPrice(e Entry) decimal.Decimal {
	if e.LowestBid.Valid {
		return e.LowestBid.Decimal.Sub(bidStep)
	}
	return e.HighestPrice.Sub(priceStep)
}

func sortedUnits(set map[models.Unit]bool) []models.Unit {
	out := make([]models.Unit, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// sortBids orders by price, then supplier, then id
func sortBids(bids []models.Bid) {
	sort.Slice(bids, func(i, j int) bool {
		if c := bids[i].Price.Cmp(bids[j].Price); c != 0 {
			return c < 0
		}
		if bids[i].SupplierID != bids[j].SupplierID {
			return bids[i].SupplierID < bids[j].SupplierID
		}
		return bids[i].ID < bids[j].ID
	})
}
