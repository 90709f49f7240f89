//go:build integration

package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xtrntr/supplylink/internal/market"
	"github.com/xtrntr/supplylink/internal/models"
)

var testDB *DB

// startPostgres runs a throwaway Postgres container and returns its connection string
func startPostgres(ctx context.Context) (tc.Container, string, error) {
	req := tc.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "supplylink",
			"POSTGRES_PASSWORD": "supplylink",
			"POSTGRES_DB":       "supplylink",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		return nil, "", err
	}
	host, err := container.Host(ctx)
	if err != nil {
		return container, "", err
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return container, "", err
	}
	return container, fmt.Sprintf("postgres://supplylink:supplylink@%s:%s/supplylink?sslmode=disable", host, port.Port()), nil
}

func TestMain(m *testing.M) {
	ctx := context.Background()

	var container tc.Container
	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		var err error
		container, connString, err = startPostgres(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Unable to start postgres: %v\n", err)
			os.Exit(1)
		}
	}

	var err error
	testDB, err = NewDB(ctx, connString)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to connect to database: %v\n", err)
		os.Exit(1)
	}

	if err := testDB.ApplyMigration(ctx, "../../migrations/001_init.sql"); err != nil {
		fmt.Fprintf(os.Stderr, "Unable to apply migration: %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close(ctx)
	if container != nil {
		container.Terminate(ctx)
	}
	os.Exit(code)
}

func truncate(t *testing.T) {
	_, err := testDB.Pool.Exec(context.Background(), "TRUNCATE TABLE users, requirements, bids, deals")
	require.NoError(t, err)
}

func newRequirement(owner, item string) *models.Requirement {
	return &models.Requirement{
		OwnerID:  owner,
		Item:     item,
		Quantity: decimal.NewFromInt(50),
		Unit:     models.UnitKg,
		Price:    decimal.RequireFromString("20.50"),
		Pincode:  "411001",
		State:    "Maharashtra",
	}
}

func TestDB_Users(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	created, err := testDB.CreateUser(ctx, &models.User{
		Username:     "asha",
		Name:         "Asha",
		PasswordHash: "hash",
		Role:         models.RoleSupplier,
		State:        "Maharashtra",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)

	_, err = testDB.CreateUser(ctx, &models.User{Username: "asha", PasswordHash: "hash", Role: models.RoleVendor})
	assert.True(t, errors.Is(err, ErrUsernameTaken))

	got, err := testDB.GetUserByUsername(ctx, "asha")
	require.NoError(t, err)
	assert.Equal(t, models.RoleSupplier, got.Role)

	_, err = testDB.GetUserByUsername(ctx, "nobody")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDB_RequirementLifecycle(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	created, err := testDB.CreateRequirement(ctx, newRequirement("v1", "Tomato"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpen, created.Status)
	assert.Equal(t, "20.5", created.Price.String())

	price := decimal.NewFromInt(21)
	updated, err := testDB.UpdateRequirement(ctx, created.ID, models.RequirementPatch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, "21", updated.Price.String())
	assert.Equal(t, "50", updated.Quantity.String())
	assert.Equal(t, "Tomato", updated.Item)

	byOwner, err := testDB.GetRequirementsByOwner(ctx, "v1")
	require.NoError(t, err)
	assert.Len(t, byOwner, 1)

	require.NoError(t, testDB.CloseRequirements(ctx, created.ID))
	_, err = testDB.UpdateRequirement(ctx, created.ID, models.RequirementPatch{Price: &price})
	assert.True(t, errors.Is(err, market.ErrRequirementClosed))
	err = testDB.DeleteRequirement(ctx, created.ID)
	assert.True(t, errors.Is(err, market.ErrRequirementClosed))

	open, err := testDB.CreateRequirement(ctx, newRequirement("v1", "Onion"))
	require.NoError(t, err)
	require.NoError(t, testDB.DeleteRequirement(ctx, open.ID))
	_, err = testDB.GetRequirement(ctx, open.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDB_UpsertBid(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	first, err := testDB.UpsertBid(ctx, &models.Bid{Item: "Tomato", State: "Maharashtra", SupplierID: "s1", SupplierName: "S1", Price: decimal.NewFromInt(18)})
	require.NoError(t, err)

	second, err := testDB.UpsertBid(ctx, &models.Bid{Item: "Tomato", State: "Maharashtra", SupplierID: "s1", SupplierName: "S1", Price: decimal.NewFromInt(17)})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	bids, err := testDB.GetBidsByState(ctx, "Maharashtra")
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, "17", bids[0].Price.String())
}

func TestDB_ConcurrentUpsertsKeepOneBid(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(price int64) {
			defer wg.Done()
			_, err := testDB.UpsertBid(ctx, &models.Bid{Item: "Rice", State: "Goa", SupplierID: "s1", Price: decimal.NewFromInt(price)})
			assert.NoError(t, err)
		}(int64(40 + i))
	}
	wg.Wait()

	bids, err := testDB.GetBidsByState(ctx, "Goa")
	require.NoError(t, err)
	assert.Len(t, bids, 1)
}

func TestDB_PastDeals(t *testing.T) {
	truncate(t)
	ctx := context.Background()

	older := time.Now().Add(-48 * time.Hour).UTC()
	newer := time.Now().Add(-1 * time.Hour).UTC()
	for _, closed := range []time.Time{older, newer} {
		_, err := testDB.CreateDeal(ctx, &models.Deal{
			Item:                "Tomato",
			State:               "Maharashtra",
			Unit:                models.UnitKg,
			WinningPrice:        decimal.NewFromInt(17),
			WinningSupplierName: "S1",
			VendorNames:         []string{"Asha", "Ravi"},
			ClosedAt:            closed,
		})
		require.NoError(t, err)
	}

	deals, err := testDB.GetPastDeals(ctx)
	require.NoError(t, err)
	require.Len(t, deals, 2)
	assert.True(t, deals[0].ClosedAt.After(deals[1].ClosedAt))
	assert.Equal(t, []string{"Asha", "Ravi"}, deals[0].VendorNames)
}
