package market

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xtrntr/supplylink/internal/models"
	"pgregory.net/rapid"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func req(id, item, qty string, unit models.Unit, price string, status models.Status) models.Requirement {
	return models.Requirement{
		ID:       id,
		OwnerID:  "vendor-" + id,
		Item:     item,
		Quantity: d(qty),
		Unit:     unit,
		Price:    d(price),
		Pincode:  "411001",
		State:    "Maharashtra",
		Status:   status,
	}
}

func bid(id, item, supplier, price string) models.Bid {
	return models.Bid{
		ID:           id,
		Item:         item,
		State:        "Maharashtra",
		SupplierID:   supplier,
		SupplierName: "Supplier " + supplier,
		Price:        d(price),
	}
}

func TestAggregate_TomatoScenario(t *testing.T) {
	reqs := []models.Requirement{
		req("r1", "Tomato", "50", models.UnitKg, "20", models.StatusOpen),
		req("r2", "Tomato", "30", models.UnitKg, "22", models.StatusOpen),
	}
	bids := []models.Bid{
		bid("b1", "Tomato", "s1", "18"),
		bid("b2", "Tomato", "s2", "19"),
	}

	demand := Aggregate(reqs, bids, "Maharashtra")

	require.Len(t, demand, 1)
	tomato := demand["Tomato"]
	assert.Equal(t, "80", tomato.TotalQuantity.String())
	assert.Equal(t, 2, tomato.VendorCount)
	assert.Equal(t, "22", tomato.HighestPrice.String())
	require.True(t, tomato.LowestBid.Valid)
	assert.Equal(t, "18", tomato.LowestBid.Decimal.String())
	assert.Equal(t, models.UnitKg, tomato.Unit)
	assert.False(t, tomato.UnitMismatch)
	assert.Len(t, tomato.Bids, 2)
	assert.Equal(t, "b1", tomato.Bids[0].ID)
}

func TestAggregate_ClosedAndForeignRequirementsIgnored(t *testing.T) {
	foreign := req("r3", "Onion", "10", models.UnitKg, "30", models.StatusOpen)
	foreign.State = "Karnataka"
	reqs := []models.Requirement{
		req("r1", "Tomato", "50", models.UnitKg, "20", models.StatusOpen),
		req("r2", "Tomato", "30", models.UnitKg, "99", models.StatusClosed),
		req("r4", "Potato", "5", models.UnitBags, "400", models.StatusClosed),
		foreign,
	}

	demand := Aggregate(reqs, nil, "Maharashtra")

	require.Len(t, demand, 1)
	assert.Equal(t, "50", demand["Tomato"].TotalQuantity.String())
	assert.Equal(t, 1, demand["Tomato"].VendorCount)
	assert.Equal(t, "20", demand["Tomato"].HighestPrice.String())
}

func TestAggregate_NoBidIsNotZero(t *testing.T) {
	reqs := []models.Requirement{req("r1", "Rice", "100", models.UnitKg, "45", models.StatusOpen)}
	// a bid from another state and a bid on another item must not count
	other := bid("b1", "Rice", "s1", "40")
	other.State = "Goa"
	bids := []models.Bid{other, bid("b2", "Wheat", "s1", "0.01")}

	demand := Aggregate(reqs, bids, "Maharashtra")

	rice := demand["Rice"]
	assert.False(t, rice.LowestBid.Valid)
	assert.Empty(t, rice.Bids)
	_, ok := demand["Wheat"]
	assert.False(t, ok, "bids alone never create demand")
}

func TestAggregate_UnitMismatch(t *testing.T) {
	reqs := []models.Requirement{
		req("r1", "Tomato", "50", models.UnitKg, "20", models.StatusOpen),
		req("r2", "Tomato", "500", models.UnitGrams, "22", models.StatusOpen),
	}

	tomato := Aggregate(reqs, nil, "Maharashtra")["Tomato"]

	assert.True(t, tomato.UnitMismatch)
	assert.Equal(t, models.Unit(""), tomato.Unit)
	assert.Equal(t, []models.Unit{models.UnitGrams, models.UnitKg}, tomato.Units)
	assert.Equal(t, "550", tomato.TotalQuantity.String())
}

func TestPersonalize(t *testing.T) {
	reqs := []models.Requirement{
		req("r1", "Tomato", "50", models.UnitKg, "20", models.StatusOpen),
		req("r2", "Onion", "30", models.UnitKg, "25", models.StatusOpen),
		req("r3", "Garlic", "5", models.UnitKg, "90", models.StatusOpen),
	}
	bids := []models.Bid{
		bid("b1", "Tomato", "s1", "18"),
		bid("b2", "Onion", "s2", "24"),
		bid("b3", "Garlic", "s1", "80"),
	}

	mine := Personalize(Aggregate(reqs, bids, "Maharashtra"), "s1", bids)

	require.Len(t, mine, 2)
	assert.Contains(t, mine, "Tomato")
	assert.Contains(t, mine, "Garlic")

	b, ok := mine["Garlic"].BidBy("s1")
	assert.True(t, ok)
	assert.Equal(t, "b3", b.ID)
	_, ok = mine["Garlic"].BidBy("s2")
	assert.False(t, ok)
}

func TestSuggestPrice(t *testing.T) {
	withBid := Entry{HighestPrice: d("22"), LowestBid: decimal.NewNullDecimal(d("18"))}
	assert.Equal(t, "17.5", SuggestPrice(withBid).String())

	noBid := Entry{HighestPrice: d("22")}
	assert.Equal(t, "21", SuggestPrice(noBid).String())
}

func TestDemand_Items(t *testing.T) {
	demand := Demand{"b": {Item: "b"}, "a": {Item: "a"}, "c": {Item: "c"}}
	items := demand.Items()
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].Item)
	assert.Equal(t, "c", items[2].Item)
}

// canonical renders a demand view so that two views compare equal iff they have the same values
func canonical(demand Demand) string {
	out := ""
	for _, e := range demand.Items() {
		low := "none"
		if e.LowestBid.Valid {
			low = e.LowestBid.Decimal.String()
		}
		out += fmt.Sprintf("%s|%s|%s|%v|%d|%s|%s|", e.Item, e.TotalQuantity, e.Unit, e.Units, e.VendorCount, e.HighestPrice, low)
		for _, b := range e.Bids {
			out += b.ID + ","
		}
		out += "\n"
	}
	return out
}

var items = []string{"Tomato", "Onion", "Potato"}

func drawInputs(t *rapid.T) ([]models.Requirement, []models.Bid) {
	n := rapid.IntRange(0, 12).Draw(t, "reqs")
	reqs := make([]models.Requirement, n)
	for i := range reqs {
		status := models.StatusOpen
		if rapid.Bool().Draw(t, "closed") {
			status = models.StatusClosed
		}
		reqs[i] = req(
			fmt.Sprintf("r%d", i),
			rapid.SampledFrom(items).Draw(t, "item"),
			fmt.Sprint(rapid.IntRange(1, 500).Draw(t, "qty")),
			models.UnitKg,
			fmt.Sprint(rapid.IntRange(1, 100).Draw(t, "price")),
			status,
		)
	}
	m := rapid.IntRange(0, 8).Draw(t, "bids")
	bids := make([]models.Bid, m)
	for i := range bids {
		bids[i] = bid(
			fmt.Sprintf("b%d", i),
			rapid.SampledFrom(items).Draw(t, "bidItem"),
			fmt.Sprintf("s%d", i),
			fmt.Sprint(rapid.IntRange(1, 100).Draw(t, "bidPrice")),
		)
		if rapid.Bool().Draw(t, "otherState") {
			bids[i].State = "Goa"
		}
	}
	return reqs, bids
}

func TestProperty_AggregateIdempotentAndOrderIndependent(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reqs, bids := drawInputs(t)

		first := canonical(Aggregate(reqs, bids, "Maharashtra"))
		second := canonical(Aggregate(reqs, bids, "Maharashtra"))
		if first != second {
			t.Fatalf("not idempotent:\n%s\n%s", first, second)
		}

		reqPerm := rapid.Permutation(reqs).Draw(t, "reqPerm")
		bidPerm := rapid.Permutation(bids).Draw(t, "bidPerm")
		shuffled := canonical(Aggregate(reqPerm, bidPerm, "Maharashtra"))
		if first != shuffled {
			t.Fatalf("order dependent:\n%s\n%s", first, shuffled)
		}
	})
}

func TestProperty_TotalsAndLowestBid(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		reqs, bids := drawInputs(t)
		demand := Aggregate(reqs, bids, "Maharashtra")

		for _, item := range items {
			sum := decimal.Zero
			open := 0
			for _, r := range reqs {
				if r.Item == item && r.Status == models.StatusOpen {
					sum = sum.Add(r.Quantity)
					open++
				}
			}
			e, ok := demand[item]
			if open == 0 {
				if ok {
					t.Fatalf("%s present without open requirements", item)
				}
				continue
			}
			if !e.TotalQuantity.Equal(sum) {
				t.Fatalf("%s total %s, want %s", item, e.TotalQuantity, sum)
			}

			var low *decimal.Decimal
			for _, b := range bids {
				if b.Item == item && b.State == "Maharashtra" {
					p := b.Price
					if low == nil || p.LessThan(*low) {
						low = &p
					}
				}
			}
			if low == nil && e.LowestBid.Valid {
				t.Fatalf("%s has lowest bid %s with no matching bids", item, e.LowestBid.Decimal)
			}
			if low != nil && (!e.LowestBid.Valid || !e.LowestBid.Decimal.Equal(*low)) {
				t.Fatalf("%s lowest bid %v, want %s", item, e.LowestBid, low)
			}
		}
	})
}
