package membership

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aifans/aifans/app/models"
	"github.com/aifans/aifans/app/repository"
	"github.com/aifans/aifans/internal/pkg/apperror"
	"github.com/aifans/aifans/internal/pkg/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	data    map[string][]byte
	failGet bool
	gets    int
}

func newMemoryCache() *memoryCache { return &memoryCache{data: map[string][]byte{}} }

func (m *memoryCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	m.gets++
	if m.failGet {
		return false, errors.New("redis down")
	}
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *memoryCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.data[key] = raw
	return nil
}

func (m *memoryCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.data, k)
	}
	return nil
}

func boolPtr(b bool) *bool { return &b }

func TestCatalogCRUDAndCache(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewRepositories(testutil.NewDB(t))
	cache := newMemoryCache()
	svc := NewCatalogService(repos, cache)

	monthly, err := svc.CreateProduct(ctx, ProductInput{
		Title: "月度会员", Price: decimal.RequireFromString("29.9"), DurationDays: 30, Type: models.PRODUCT_TYPE_PREMIUM,
	})
	require.NoError(t, err)
	assert.True(t, monthly.IsActive)

	_, err = svc.CreateProduct(ctx, ProductInput{
		Title: "隐藏", Price: decimal.RequireFromString("1"), DurationDays: 1, Type: models.PRODUCT_TYPE_PREMIUM, IsActive: boolPtr(false),
	})
	require.NoError(t, err)

	products, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "月度会员", products[0].Title)
	assert.Contains(t, cache.data, productsCacheKey)

	_, err = svc.UpdateProduct(ctx, monthly.ID, ProductInput{
		Title: "月度会员 Plus", Price: decimal.RequireFromString("39.9"), DurationDays: 30, Type: models.PRODUCT_TYPE_PREMIUM,
	})
	require.NoError(t, err)
	assert.NotContains(t, cache.data, productsCacheKey)

	products, err = svc.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "月度会员 Plus", products[0].Title)
	assert.True(t, products[0].Price.Equal(decimal.RequireFromString("39.9")))

	all, err := svc.ListAllProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestCatalogFallsBackWhenCacheFails(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewRepositories(testutil.NewDB(t))
	cache := newMemoryCache()
	cache.failGet = true
	svc := NewCatalogService(repos, cache)

	_, err := svc.CreateProduct(ctx, ProductInput{Title: "终身", Price: decimal.RequireFromString("299"), Type: models.PRODUCT_TYPE_LIFETIME})
	require.NoError(t, err)

	products, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestProductValidation(t *testing.T) {
	svc := NewCatalogService(repository.NewRepositories(testutil.NewDB(t)), nil)
	tests := []struct {
		name string
		in   ProductInput
	}{
		{"zero price", ProductInput{Title: "x", Price: decimal.Zero, DurationDays: 30, Type: models.PRODUCT_TYPE_PREMIUM}},
		{"three decimals", ProductInput{Title: "x", Price: decimal.RequireFromString("1.999"), DurationDays: 30, Type: models.PRODUCT_TYPE_PREMIUM}},
		{"premium without days", ProductInput{Title: "x", Price: decimal.RequireFromString("1"), DurationDays: 0, Type: models.PRODUCT_TYPE_PREMIUM}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateProduct(context.Background(), tt.in)
			assert.True(t, apperror.Is(err, apperror.KindBadRequest))
		})
	}
}

func TestDeleteProductWithOrders(t *testing.T) {
	ctx := context.Background()
	repos := repository.NewRepositories(testutil.NewDB(t))
	svc := NewCatalogService(repos, nil)

	p, err := svc.CreateProduct(ctx, ProductInput{Title: "x", Price: decimal.RequireFromString("9.9"), DurationDays: 7, Type: models.PRODUCT_TYPE_PREMIUM})
	require.NoError(t, err)
	u := newUser(t, repos, "buyer@example.com", models.ROLE_NORMAL, nil)
	require.NoError(t, repos.Order.Create(ctx, &models.PaymentOrder{UserID: u.ID, ProductID: p.ID, Amount: p.Price, Status: models.ORDER_STATUS_PENDING}))

	assert.True(t, apperror.Is(svc.DeleteProduct(ctx, p.ID), apperror.KindBadRequest))

	other, err := svc.CreateProduct(ctx, ProductInput{Title: "y", Price: decimal.RequireFromString("1"), DurationDays: 1, Type: models.PRODUCT_TYPE_PREMIUM})
	require.NoError(t, err)
	assert.NoError(t, svc.DeleteProduct(ctx, other.ID))
	assert.True(t, apperror.Is(svc.DeleteProduct(ctx, other.ID), apperror.KindNotFound))
}
