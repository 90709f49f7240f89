package market

import "errors"

// Error taxonomy shared by the coordinators, the API and the client.
// All of them are recoverable: the user adjusts input or retries.
var (
	ErrWindowClosed        = errors.New("bidding window is closed")
	ErrWindowOpen          = errors.New("requirements cannot change while the bidding window is open")
	ErrPriceNotCompetitive = errors.New("bid must be lower than the current lowest bid")
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotOwner            = errors.New("requirement belongs to another vendor")
	ErrRequirementClosed   = errors.New("requirement is closed")
	ErrNetworkFailure      = errors.New("store unavailable, please retry")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrUnitMismatch        = errors.New("unit differs from the unit already used for this item")
	ErrForbiddenRole       = errors.New("action not allowed for this role")
	ErrUnknownItem         = errors.New("no open demand for this item")
	ErrProfileIncomplete   = errors.New("profile is missing state or pincode")
	ErrNotFound            = errors.New("not found")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrWindowClosed, "window_closed"},
	{ErrWindowOpen, "window_open"},
	{ErrPriceNotCompetitive, "price_not_competitive"},
	{ErrInvalidInput, "invalid_input"},
	{ErrNotOwner, "not_owner"},
	{ErrRequirementClosed, "requirement_closed"},
	{ErrNetworkFailure, "network_failure"},
	{ErrNotAuthenticated, "not_authenticated"},
	{ErrUnitMismatch, "unit_mismatch"},
	{ErrForbiddenRole, "forbidden_role"},
	{ErrUnknownItem, "unknown_item"},
	{ErrProfileIncomplete, "profile_incomplete"},
	{ErrNotFound, "not_found"},
}

// Code returns the wire code of the first taxonomy error in err's chain, or "" if none matches
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return ""
}

// FromCode returns the taxonomy error for a wire code, or nil if the code is unknown
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
