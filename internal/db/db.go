package db

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
)

// ErrNotFound is returned when a row does not exist
var ErrNotFound = market.ErrNotFound

// ErrUsernameTaken is returned by CreateUser for a username already registered
var ErrUsernameTaken = errors.New("username already taken")

const uniqueViolation = "23505"

// DB wraps a PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB initializes a new database connection pool
func NewDB(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close(ctx context.Context) error {
	db.Pool.Close()
	return nil
}

// Ping checks the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// ApplyMigration executes the SQL file at path. The schema uses IF NOT EXISTS so reapplying is harmless.
func (db *DB) ApplyMigration(ctx context.Context, path string) error {
	migration, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read migration: %w", err)
	}
	if _, err := db.Pool.Exec(ctx, string(migration)); err != nil {
		return fmt.Errorf("failed to apply migration: %w", err)
	}
	return nil
}

// CreateUser inserts a new user
func (db *DB) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	created := &models.User{}
	var role string
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO users (id, username, name, password_hash, role, state, pincode)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, username, name, password_hash, role, state, pincode, created_at`,
		uuid.NewString(), user.Username, user.Name, user.PasswordHash, user.Role.String(), user.State, user.Pincode).Scan(
		&created.ID, &created.Username, &created.Name, &created.PasswordHash, &role, &created.State, &created.Pincode, &created.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("%w: %q", ErrUsernameTaken, user.Username)
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	if created.Role, err = models.ParseRole(role); err != nil {
		return nil, err
	}
	return created, nil
}

// GetUserByUsername retrieves a user by username
func (db *DB) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user := &models.User{}
	var role string
	err := db.Pool.QueryRow(ctx,
		"SELECT id, username, name, password_hash, role, state, pincode, created_at FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.Name, &user.PasswordHash, &role, &user.State, &user.Pincode, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %q: %w", username, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user.Role, err = models.ParseRole(role); err != nil {
		return nil, err
	}
	return user, nil
}

const requirementColumns = "id, owner_id, item, quantity, unit, price, pincode, state, status, created_at"

func scanRequirement(row pgx.Row) (*models.Requirement, error) {
	var r models.Requirement
	err := row.Scan(&r.ID, &r.OwnerID, &r.Item, &r.Quantity, &r.Unit, &r.Price, &r.Pincode, &r.State, &r.Status, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (db *DB) queryRequirements(ctx context.Context, query string, args ...any) ([]models.Requirement, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs := []models.Requirement{}
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan requirement: %w", err)
		}
		reqs = append(reqs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reqs, nil
}

// GetRequirementsByState retrieves every requirement posted in a state, oldest first
func (db *DB) GetRequirementsByState(ctx context.Context, state string) ([]models.Requirement, error) {
	reqs, err := db.queryRequirements(ctx,
		"SELECT "+requirementColumns+" FROM requirements WHERE state = $1 ORDER BY created_at ASC, id ASC", state)
	if err != nil {
		return nil, fmt.Errorf("failed to get requirements by state: %w", err)
	}
	return reqs, nil
}

// GetRequirementsByOwner retrieves a vendor's requirements, oldest first
func (db *DB) GetRequirementsByOwner(ctx context.Context, ownerID string) ([]models.Requirement, error) {
	reqs, err := db.queryRequirements(ctx,
		"SELECT "+requirementColumns+" FROM requirements WHERE owner_id = $1 ORDER BY created_at ASC, id ASC", ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get requirements by owner: %w", err)
	}
	return reqs, nil
}

// GetRequirement retrieves a single requirement
func (db *DB) GetRequirement(ctx context.Context, id string) (*models.Requirement, error) {
	r, err := scanRequirement(db.Pool.QueryRow(ctx,
		"SELECT "+requirementColumns+" FROM requirements WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("requirement %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get requirement: %w", err)
	}
	return r, nil
}

// CreateRequirement inserts a new open requirement
func (db *DB) CreateRequirement(ctx context.Context, req *models.Requirement) (*models.Requirement, error) {
	r, err := scanRequirement(db.Pool.QueryRow(ctx,
		`INSERT INTO requirements (id, owner_id, item, quantity, unit, price, pincode, state, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'open')
		 RETURNING `+requirementColumns,
		uuid.NewString(), req.OwnerID, req.Item, req.Quantity, req.Unit, req.Price, req.Pincode, req.State))
	if err != nil {
		return nil, fmt.Errorf("failed to create requirement: %w", err)
	}
	return r, nil
}

// UpdateRequirement applies a patch to an open requirement
func (db *DB) UpdateRequirement(ctx context.Context, id string, patch models.RequirementPatch) (*models.Requirement, error) {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockOpenRequirement(ctx, tx, id); err != nil {
		return nil, err
	}

	r, err := scanRequirement(tx.QueryRow(ctx,
		`UPDATE requirements SET
			item = COALESCE($2, item),
			quantity = COALESCE($3, quantity),
			unit = COALESCE($4, unit),
			price = COALESCE($5, price)
		 WHERE id = $1
		 RETURNING `+requirementColumns,
		id, patch.Item, patch.Quantity, patch.Unit, patch.Price))
	if err != nil {
		return nil, fmt.Errorf("failed to update requirement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return r, nil
}

// DeleteRequirement removes an open requirement
func (db *DB) DeleteRequirement(ctx context.Context, id string) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := lockOpenRequirement(ctx, tx, id); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, "DELETE FROM requirements WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete requirement: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// lockOpenRequirement locks the row for update and checks it is still open
func lockOpenRequirement(ctx context.Context, tx pgx.Tx, id string) error {
	var status models.Status
	err := tx.QueryRow(ctx, "SELECT status FROM requirements WHERE id = $1 FOR UPDATE", id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("requirement %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to get requirement: %w", err)
	}
	if status != models.StatusOpen {
		return market.ErrRequirementClosed
	}
	return nil
}

// CloseRequirements marks requirements closed. Deal closing calls this; the marketplace never does.
func (db *DB) CloseRequirements(ctx context.Context, ids ...string) error {
	_, err := db.Pool.Exec(ctx, "UPDATE requirements SET status = 'closed' WHERE id = ANY($1)", ids)
	if err != nil {
		return fmt.Errorf("failed to close requirements: %w", err)
	}
	return nil
}

// GetBidsByState retrieves all bids in a state
func (db *DB) GetBidsByState(ctx context.Context, state string) ([]models.Bid, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT id, item, state, supplier_id, supplier_name, price, updated_at FROM bids WHERE state = $1 ORDER BY updated_at ASC, id ASC",
		state)
	if err != nil {
		return nil, fmt.Errorf("failed to get bids: %w", err)
	}
	defer rows.Close()

	bids := []models.Bid{}
	for rows.Next() {
		var b models.Bid
		if err := rows.Scan(&b.ID, &b.Item, &b.State, &b.SupplierID, &b.SupplierName, &b.Price, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bids, nil
}

// UpsertBid inserts a bid or replaces the supplier's existing bid for the same item and state.
// The replaced bid keeps its id.
func (db *DB) UpsertBid(ctx context.Context, bid *models.Bid) (*models.Bid, error) {
	saved := &models.Bid{}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO bids (id, item, state, supplier_id, supplier_name, price, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		 ON CONFLICT (supplier_id, item, state) DO UPDATE SET
			supplier_name = EXCLUDED.supplier_name,
			price = EXCLUDED.price,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, item, state, supplier_id, supplier_name, price, updated_at`,
		uuid.NewString(), bid.Item, bid.State, bid.SupplierID, bid.SupplierName, bid.Price, nullTime(bid)).Scan(
		&saved.ID, &saved.Item, &saved.State, &saved.SupplierID, &saved.SupplierName, &saved.Price, &saved.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert bid: %w", err)
	}
	return saved, nil
}

func nullTime(bid *models.Bid) any {
	if bid.UpdatedAt.IsZero() {
		return nil
	}
	return bid.UpdatedAt
}

// CreateDeal records a closed deal
func (db *DB) CreateDeal(ctx context.Context, deal *models.Deal) (*models.Deal, error) {
	saved := &models.Deal{}
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO deals (id, item, state, unit, winning_price, winning_supplier_name, vendor_names, closed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id, item, state, unit, winning_price, winning_supplier_name, vendor_names, closed_at`,
		uuid.NewString(), deal.Item, deal.State, deal.Unit, deal.WinningPrice, deal.WinningSupplierName, deal.VendorNames, deal.ClosedAt).Scan(
		&saved.ID, &saved.Item, &saved.State, &saved.Unit, &saved.WinningPrice, &saved.WinningSupplierName, &saved.VendorNames, &saved.ClosedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create deal: %w", err)
	}
	return saved, nil
}

// GetPastDeals retrieves closed deals, newest first
func (db *DB) GetPastDeals(ctx context.Context) ([]models.Deal, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT id, item, state, unit, winning_price, winning_supplier_name, vendor_names, closed_at
		FROM deals
		ORDER BY closed_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get deals: %w", err)
	}
	defer rows.Close()

	deals := []models.Deal{}
	for rows.Next() {
		var deal models.Deal
		err := rows.Scan(
			&deal.ID,
			&deal.Item,
			&deal.State,
			&deal.Unit,
			&deal.WinningPrice,
			&deal.WinningSupplierName,
			&deal.VendorNames,
			&deal.ClosedAt,
		)
		if err != nil {
			return nil, err
		}
		deals = append(deals, deal)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	return deals, nil
}
