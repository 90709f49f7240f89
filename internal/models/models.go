package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Unit is the measure a requirement quantity is expressed in
type Unit string

const (
	UnitKg     Unit = "kg"
	UnitGrams  Unit = "grams"
	UnitLiters Unit = "liters"
	UnitPieces Unit = "pieces"
	UnitBags   Unit = "bags"
	UnitMeters Unit = "meters"
)

// Units lists every accepted unit in display order
var Units = []Unit{UnitKg, UnitGrams, UnitLiters, UnitPieces, UnitBags, UnitMeters}

// ParseUnit validates a unit name
func ParseUnit(s string) (Unit, error) {
	for _, u := range Units {
		if string(u) == s {
			return u, nil
		}
	}
	return "", fmt.Errorf("unknown unit %q", s)
}

// Status is the lifecycle state of a requirement
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed" // terminal, set by deal closing
)

// Role distinguishes the two kinds of marketplace users
type Role int

const (
	RoleVendor Role = iota + 1
	RoleSupplier
)

// ParseRole converts the wire name of a role
func ParseRole(s string) (Role, error) {
	switch s {
	case "vendor":
		return RoleVendor, nil
	case "supplier":
		return RoleSupplier, nil
	}
	return 0, fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string {
	switch r {
	case RoleVendor:
		return "vendor"
	case RoleSupplier:
		return "supplier"
	}
	return "unknown"
}

// MarshalText lets roles travel as "vendor" / "supplier"
func (r Role) MarshalText() ([]byte, error) {
	if r != RoleVendor && r != RoleSupplier {
		return nil, fmt.Errorf("invalid role %d", int(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText is the inverse of MarshalText
func (r *Role) UnmarshalText(b []byte) error {
	parsed, err := ParseRole(string(b))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// User represents a registered user
type User struct {
	ID           string
	Username     string
	Name         string
	PasswordHash string
	Role         Role
	State        string
	Pincode      string
	CreatedAt    time.Time
}

// Identity is what the identity provider resolves a request to
type Identity struct {
	UserID  string `json:"user_id"`
	Name    string `json:"name"`
	Role    Role   `json:"role"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
}

// Requirement is a vendor's posted demand for an item
type Requirement struct {
	ID        string          `json:"id"`
	OwnerID   string          `json:"owner_id"`
	Item      string          `json:"item"`
	Quantity  decimal.Decimal `json:"quantity"`
	Unit      Unit            `json:"unit"`
	Price     decimal.Decimal `json:"price"` // expected price per unit
	Pincode   string          `json:"pincode"`
	State     string          `json:"state"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// RequirementPatch holds the editable fields of a requirement. Nil fields are left unchanged.
type RequirementPatch struct {
	Item     *string          `json:"item,omitempty"`
	Quantity *decimal.Decimal `json:"quantity,omitempty"`
	Unit     *Unit            `json:"unit,omitempty"`
	Price    *decimal.Decimal `json:"price,omitempty"`
}

// Apply returns a copy of req with the patch applied
func (p RequirementPatch) Apply(req Requirement) Requirement {
	if p.Item != nil {
		req.Item = *p.Item
	}
	if p.Quantity != nil {
		req.Quantity = *p.Quantity
	}
	if p.Unit != nil {
		req.Unit = *p.Unit
	}
	if p.Price != nil {
		req.Price = *p.Price
	}
	return req
}

// Bid is a supplier's standing offer for an item in a state.
// There is at most one bid per (SupplierID, Item, State).
type Bid struct {
	ID           string          `json:"id"`
	Item         string          `json:"item"`
	State        string          `json:"state"`
	SupplierID   string          `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	Price        decimal.Decimal `json:"price"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Deal is a closed deal produced by the settlement process
type Deal struct {
	ID                  string          `json:"id"`
	Item                string          `json:"item"`
	State               string          `json:"state"`
	Unit                Unit            `json:"unit"`
	WinningPrice        decimal.Decimal `json:"winning_price"`
	WinningSupplierName string          `json:"winning_supplier_name"`
	VendorNames         []string        `json:"vendor_names"`
	ClosedAt            time.Time       `json:"closed_at"`
}
