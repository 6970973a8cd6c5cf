package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"audiostore/logger"
	"audiostore/models"
	"audiostore/utils"
)

// ErrInvalidProductInput is returned for malformed catalog payloads.
var ErrInvalidProductInput = errors.New("invalid product input")

// ProductFilter narrows catalog listings.
type ProductFilter struct {
	Category string
	Search   string
	Page     int
	PageSize int
}

// ProductService owns the product catalog. The download path reads it; the
// admin API mutates it.
type ProductService interface {
	Create(ctx context.Context, req models.CreateProductRequest) (models.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]models.Product, int, error)
	Get(ctx context.Context, id int64) (models.Product, error)
	Update(ctx context.Context, id int64, req models.UpdateProductRequest) (models.Product, error)
	Delete(ctx context.Context, id int64) error
}

type productService struct {
	db     SQLExecutor
	signer SignedURLIssuer
}

// NewProductService builds the catalog service. The signer is used to clean
// up replaced or orphaned stored objects on update/delete.
func NewProductService(db SQLExecutor, signer SignedURLIssuer) ProductService {
	return &productService{db: db, signer: signer}
}

const productColumns = `id, name, description, price, category, tags, image_url, file_url, created_at, updated_at`

func (s *productService) Create(ctx context.Context, req models.CreateProductRequest) (models.Product, error) {
	if strings.TrimSpace(req.Name) == "" {
		return models.Product{}, fmt.Errorf("%w: name is required", ErrInvalidProductInput)
	}
	if req.Price < 0 {
		return models.Product{}, fmt.Errorf("%w: price cannot be negative", ErrInvalidProductInput)
	}

	now := utils.FormatDateTimeForDB(utils.NowUTC())
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO products (name, description, price, category, tags, image_url, file_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.Name, req.Description, req.Price, req.Category, req.Tags, req.ImageURL, req.FileURL, now, now,
	)
	if err != nil {
		return models.Product{}, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return models.Product{}, err
	}

	return models.Product{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Category:    req.Category,
		Tags:        req.Tags,
		ImageURL:    req.ImageURL,
		FileURL:     req.FileURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *productService) List(ctx context.Context, filter ProductFilter) ([]models.Product, int, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	where := " WHERE 1=1"
	args := make([]any, 0)
	if strings.TrimSpace(filter.Category) != "" {
		where += " AND category = ?"
		args = append(args, filter.Category)
	}
	if strings.TrimSpace(filter.Search) != "" {
		where += " AND (name LIKE ? OR description LIKE ?)"
		pattern := "%" + filter.Search + "%"
		args = append(args, pattern, pattern)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM products"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	listArgs := append(args, filter.PageSize, (filter.Page-1)*filter.PageSize)
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+` FROM products`+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	products := make([]models.Product, 0)
	for rows.Next() {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Tags, &p.ImageURL, &p.FileURL, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}

	return products, total, rows.Err()
}

func (s *productService) Get(ctx context.Context, id int64) (models.Product, error) {
	var p models.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+` FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Category, &p.Tags, &p.ImageURL, &p.FileURL, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Product{}, ErrProductNotFound
		}
		return models.Product{}, err
	}
	return p, nil
}

func (s *productService) Update(ctx context.Context, id int64, req models.UpdateProductRequest) (models.Product, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return models.Product{}, err
	}

	if req.Name != "" {
		current.Name = req.Name
	}
	if req.Description != "" {
		current.Description = req.Description
	}
	if req.Price != nil {
		if *req.Price < 0 {
			return models.Product{}, fmt.Errorf("%w: price cannot be negative", ErrInvalidProductInput)
		}
		current.Price = *req.Price
	}
	if req.Category != "" {
		current.Category = req.Category
	}
	if req.Tags != "" {
		current.Tags = req.Tags
	}
	if req.ImageURL != "" {
		current.ImageURL = req.ImageURL
	}

	replacedFile := ""
	if req.FileURL != nil && *req.FileURL != current.FileURL {
		replacedFile = current.FileURL
		current.FileURL = *req.FileURL
	}

	current.UpdatedAt = utils.FormatDateTimeForDB(utils.NowUTC())
	_, err = s.db.ExecContext(ctx, `
		UPDATE products
		SET name = ?, description = ?, price = ?, category = ?, tags = ?, image_url = ?, file_url = ?, updated_at = ?
		WHERE id = ?`,
		current.Name, current.Description, current.Price, current.Category,
		current.Tags, current.ImageURL, current.FileURL, current.UpdatedAt, id,
	)
	if err != nil {
		return models.Product{}, err
	}

	// A replaced storage key leaves the old object orphaned; delete it.
	// Deletion failures never fail the catalog update.
	if replacedFile != "" {
		s.deleteStoredObject(ctx, replacedFile)
	}

	return current, nil
}

func (s *productService) Delete(ctx context.Context, id int64) error {
	product, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	// Download links cascade with the product row.
	if _, err := s.db.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id); err != nil {
		return err
	}

	if product.FileURL != "" {
		s.deleteStoredObject(ctx, product.FileURL)
	}

	return nil
}

func (s *productService) deleteStoredObject(ctx context.Context, key string) {
	if s.signer == nil {
		return
	}
	if err := s.signer.DeleteObject(ctx, key); err != nil {
		logger.WithFields(map[string]interface{}{
			"key":   key,
			"error": err.Error(),
		}).Warn("Failed to delete replaced product file")
	}
}
