package catalog

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/multivendhq/multivend-backend/pkg/db/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:catalog_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.InventoryItem{}))
	return db
}

func TestReserveStockGuardsQuantity(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	productID := uuid.New()
	require.NoError(t, db.Create(&models.InventoryItem{ProductID: productID, AvailableQty: 5}).Error)

	ok, err := repo.ReserveStock(ctx, productID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	// Only 2 left; a larger reservation must fail without mutating stock.
	ok, err = repo.ReserveStock(ctx, productID, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	inv, err := repo.FindInventory(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.AvailableQty)
}

func TestReserveStockConcurrentNeverNegative(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	// sqlite allows one writer; funneling through a single connection makes
	// the goroutines contend on the pool instead of tripping SQLITE_BUSY.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	productID := uuid.New()
	require.NoError(t, db.Create(&models.InventoryItem{ProductID: productID, AvailableQty: 5}).Error)

	const buyers = 20
	type attempt struct {
		ok  bool
		err error
	}
	results := make(chan attempt, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, reserveErr := repo.ReserveStock(ctx, productID, 1)
			results <- attempt{ok: ok, err: reserveErr}
		}()
	}
	wg.Wait()
	close(results)

	var wins int
	for res := range results {
		require.NoError(t, res.err)
		if res.ok {
			wins++
		}
	}
	assert.Equal(t, 5, wins)

	inv, err := repo.FindInventory(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 0, inv.AvailableQty)
}

func TestReserveStockUnknownProduct(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	repo := NewRepository(db)

	ok, err := repo.ReserveStock(context.Background(), uuid.New(), 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseStockRestores(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	productID := uuid.New()
	require.NoError(t, db.Create(&models.InventoryItem{ProductID: productID, AvailableQty: 1}).Error)

	ok, err := repo.ReserveStock(ctx, productID, 1)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.ReleaseStock(ctx, productID, 1))

	inv, err := repo.FindInventory(ctx, productID)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.AvailableQty)
}

func TestFindActiveProductsFiltersInactive(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	repo := NewRepository(db)

	vendorID := uuid.New()
	active := models.Product{ID: uuid.New(), VendorID: vendorID, Name: "Ceramic Mug", PriceCents: 4500, Active: true}
	inactive := models.Product{ID: uuid.New(), VendorID: vendorID, Name: "Retired SKU", PriceCents: 1000, Active: false}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&inactive).Error)

	products, err := repo.FindActiveProducts(ctx, []uuid.UUID{active.ID, inactive.ID})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Ceramic Mug", products[active.ID].Name)
}
