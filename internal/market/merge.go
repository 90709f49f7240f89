package market

import "github.com/xtrntr/supplylink/internal/models"

// MergeBid upserts bid into bids by id: an existing bid with the same id is
// replaced in place, otherwise bid is appended. The input slice is not modified.
func MergeBid(bids []models.Bid, bid models.Bid) []models.Bid {
	out := make([]models.Bid, len(bids), len(bids)+1)
	copy(out, bids)
	for i := range out {
		if out[i].ID == bid.ID {
			out[i] = bid
			return out
		}
	}
	return append(out, bid)
}

// MergeRequirement upserts req into reqs by id, keeping order
func MergeRequirement(reqs []models.Requirement, req models.Requirement) []models.Requirement {
	out := make([]models.Requirement, len(reqs), len(reqs)+1)
	copy(out, reqs)
	for i := range out {
		if out[i].ID == req.ID {
			out[i] = req
			return out
		}
	}
	return append(out, req)
}

// RemoveRequirement returns reqs without the requirement with the given id
func RemoveRequirement(reqs []models.Requirement, id string) []models.Requirement {
	out := make([]models.Requirement, 0, len(reqs))
	for _, r := range reqs {
		if r.ID != id {
			out = append(out, r)
		}
	}
	return out
}
