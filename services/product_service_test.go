package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audiostore/models"
)

func TestProductCRUD(t *testing.T) {
	db := newTestDB(t)
	signer := &fakeSigner{}
	svc := NewProductService(NewSQLExecutor(db), signer)
	ctx := context.Background()

	created, err := svc.Create(ctx, models.CreateProductRequest{
		Name:     "Lofi Drums",
		Price:    14.99,
		Category: "drums",
		FileURL:  "audio/lofi-drums.zip",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	t.Run("get", func(t *testing.T) {
		got, err := svc.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, "Lofi Drums", got.Name)
		assert.Equal(t, 14.99, got.Price)
	})

	t.Run("update replaces file and deletes old object", func(t *testing.T) {
		newFile := "audio/lofi-drums-v2.zip"
		updated, err := svc.Update(ctx, created.ID, models.UpdateProductRequest{
			FileURL: &newFile,
		})
		require.NoError(t, err)
		assert.Equal(t, newFile, updated.FileURL)
		assert.Contains(t, signer.deleted, "audio/lofi-drums.zip")
	})

	t.Run("delete removes row and stored object", func(t *testing.T) {
		require.NoError(t, svc.Delete(ctx, created.ID))
		_, err := svc.Get(ctx, created.ID)
		assert.ErrorIs(t, err, ErrProductNotFound)
		assert.Contains(t, signer.deleted, "audio/lofi-drums-v2.zip")
	})
}

func TestProductValidation(t *testing.T) {
	db := newTestDB(t)
	svc := NewProductService(NewSQLExecutor(db), &fakeSigner{})
	ctx := context.Background()

	t.Run("name required", func(t *testing.T) {
		_, err := svc.Create(ctx, models.CreateProductRequest{Price: 1})
		assert.ErrorIs(t, err, ErrInvalidProductInput)
	})

	t.Run("negative price rejected", func(t *testing.T) {
		_, err := svc.Create(ctx, models.CreateProductRequest{Name: "X", Price: -1})
		assert.ErrorIs(t, err, ErrInvalidProductInput)
	})

	t.Run("unknown product", func(t *testing.T) {
		_, err := svc.Get(ctx, 424242)
		assert.ErrorIs(t, err, ErrProductNotFound)
	})
}

func TestProductListFilters(t *testing.T) {
	db := newTestDB(t)
	svc := NewProductService(NewSQLExecutor(db), &fakeSigner{})
	ctx := context.Background()

	seed := []models.CreateProductRequest{
		{Name: "House Kicks", Price: 5, Category: "drums"},
		{Name: "Techno Kicks", Price: 5, Category: "drums"},
		{Name: "Ambient Pads", Price: 5, Category: "synths"},
	}
	for _, req := range seed {
		_, err := svc.Create(ctx, req)
		require.NoError(t, err)
	}

	t.Run("category filter", func(t *testing.T) {
		products, total, err := svc.List(ctx, ProductFilter{Category: "drums"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, products, 2)
	})

	t.Run("search filter", func(t *testing.T) {
		products, total, err := svc.List(ctx, ProductFilter{Search: "Kicks"})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, products, 2)
	})

	t.Run("paging", func(t *testing.T) {
		products, total, err := svc.List(ctx, ProductFilter{Page: 1, PageSize: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, total)
		assert.Len(t, products, 2)

		products, _, err = svc.List(ctx, ProductFilter{Page: 2, PageSize: 2})
		require.NoError(t, err)
		assert.Len(t, products, 1)
	})
}
