package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/calvindo/checkout-pricing/internal/cache"
	"github.com/calvindo/checkout-pricing/internal/catalog"
)

type fakeStore struct {
	products map[uuid.UUID]catalog.Product
	variants map[uuid.UUID]catalog.Variant
	gets     int
}

func (s *fakeStore) GetProduct(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	s.gets++
	if p, ok := s.products[id]; ok {
		return p, nil
	}
	return catalog.Product{}, catalog.ErrNotFound
}

func (s *fakeStore) GetVariant(_ context.Context, id uuid.UUID) (catalog.Variant, error) {
	if v, ok := s.variants[id]; ok {
		return v, nil
	}
	return catalog.Variant{}, catalog.ErrNotFound
}

func (s *fakeStore) ListProducts(context.Context, int, int) ([]catalog.Product, int, error) {
	return nil, 0, nil
}

func (s *fakeStore) ListVariants(context.Context, uuid.UUID) ([]catalog.Variant, error) {
	return nil, nil
}

func (s *fakeStore) SaveProduct(_ context.Context, p catalog.Product) (catalog.Product, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	s.products[p.ID] = p
	return p, nil
}

func newService(t *testing.T) (*catalog.Service, *fakeStore) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := &fakeStore{
		products: map[uuid.UUID]catalog.Product{},
		variants: map[uuid.UUID]catalog.Variant{},
	}
	return &catalog.Service{Store: store, Cache: cache.New(client, time.Minute)}, store
}

func TestPriceForVariantResolution(t *testing.T) {
	svc, store := newService(t)
	product := catalog.Product{ID: uuid.New(), Title: "Ebook", Price: decimal.RequireFromString("20.00"), Active: true}
	variant := catalog.Variant{ID: uuid.New(), ProductID: product.ID, Label: "Deluxe", Price: decimal.RequireFromString("35.00")}
	store.products[product.ID] = product
	store.variants[variant.ID] = variant

	price, title, err := svc.PriceFor(context.Background(), product.ID, nil)
	require.NoError(t, err)
	require.Equal(t, "20", price.String())
	require.Equal(t, "Ebook", title)

	price, title, err = svc.PriceFor(context.Background(), product.ID, &variant.ID)
	require.NoError(t, err)
	require.Equal(t, "35", price.String())
	require.Equal(t, "Ebook (Deluxe)", title)
}

func TestPriceForVariantMismatch(t *testing.T) {
	svc, store := newService(t)
	product := catalog.Product{ID: uuid.New(), Title: "Ebook", Price: decimal.NewFromInt(20), Active: true}
	other := catalog.Variant{ID: uuid.New(), ProductID: uuid.New(), Label: "Other", Price: decimal.NewFromInt(5)}
	store.products[product.ID] = product
	store.variants[other.ID] = other

	_, _, err := svc.PriceFor(context.Background(), product.ID, &other.ID)
	require.ErrorIs(t, err, catalog.ErrVariantMismatch)
}

func TestPriceForUnknownProduct(t *testing.T) {
	svc, _ := newService(t)
	_, _, err := svc.PriceFor(context.Background(), uuid.New(), nil)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestGetProductCached(t *testing.T) {
	svc, store := newService(t)
	product := catalog.Product{ID: uuid.New(), Title: "Ebook", Price: decimal.NewFromInt(20), Active: true}
	store.products[product.ID] = product

	for range 3 {
		got, err := svc.GetProduct(context.Background(), product.ID)
		require.NoError(t, err)
		require.Equal(t, product.Title, got.Title)
	}
	require.Equal(t, 1, store.gets)
}

func TestSaveProductFloorsNegativePrice(t *testing.T) {
	svc, _ := newService(t)
	saved, err := svc.SaveProduct(context.Background(), catalog.Product{
		Title: "Promo", Price: decimal.RequireFromString("-3.00"), Active: true,
	})
	require.NoError(t, err)
	require.True(t, saved.Price.IsZero(), "negative price floored at the source")

	svc.AllowNegativePrices = true
	saved, err = svc.SaveProduct(context.Background(), catalog.Product{
		Title: "Promo", Price: decimal.RequireFromString("-3.00"), Active: true,
	})
	require.NoError(t, err)
	require.Equal(t, "-3", saved.Price.String())
}
