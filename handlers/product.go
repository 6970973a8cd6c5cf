package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"audiostore/logger"
	"audiostore/models"
	"audiostore/services"
)

// ProductHandler serves the catalog API. Public routes return the sanitized
// product view; admin routes see the full record including the storage key.
type ProductHandler struct {
	products services.ProductService
}

// NewProductHandler builds the handler.
func NewProductHandler(products services.ProductService) *ProductHandler {
	return &ProductHandler{products: products}
}

// List returns the public catalog, paged.
// @Summary List products
// @Tags products
// @Produce json
// @Param category query string false "Category filter"
// @Param search query string false "Name/description search"
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} models.PaginatedResponse{data=[]models.PublicProduct} "Page of products"
// @Failure 500 {object} models.APIResponse "Server error"
// @Router /api/products [get]
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	products, total, err := h.products.List(r.Context(), services.ProductFilter{
		Category: r.URL.Query().Get("category"),
		Search:   r.URL.Query().Get("search"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		logger.Error("Failed to list products: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to list products", err))
		return
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	public := make([]models.PublicProduct, 0, len(products))
	for i := range products {
		public = append(public, products[i].Public())
	}

	totalPages := (total + pageSize - 1) / pageSize
	json.NewEncoder(w).Encode(models.PaginatedResponse{
		Status:  "success",
		Message: "Products retrieved",
		Data:    public,
		Meta: models.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
			TotalCount: total,
		},
	})
}

// Get returns one product from the public catalog.
// @Summary Get product
// @Tags products
// @Produce json
// @Param id path int true "Product ID"
// @Success 200 {object} models.APIResponse{data=models.PublicProduct} "Product"
// @Failure 404 {object} models.APIResponse "Not found"
// @Router /api/products/{id} [get]
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid product ID", nil))
		return
	}

	product, err := h.products.Get(r.Context(), id)
	if err != nil {
		writeProductError(w, err)
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Product retrieved", product.Public()))
}

// Create adds a product to the catalog.
// @Summary Create product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateProductRequest true "Product"
// @Success 201 {object} models.APIResponse{data=models.Product} "Created"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Router /api/admin/products [post]
func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	product, err := h.products.Create(r.Context(), req)
	if err != nil {
		writeProductError(w, err)
		return
	}

	logger.WithFields(map[string]interface{}{
		"product_id": product.ID,
		"name":       product.Name,
	}).Info("Product created")

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.SuccessResponse("Product created", product))
}

// Update modifies a product.
// @Summary Update product
// @Tags products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Param request body models.UpdateProductRequest true "Fields to change"
// @Success 200 {object} models.APIResponse{data=models.Product} "Updated"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 404 {object} models.APIResponse "Not found"
// @Router /api/admin/products/{id} [put]
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid product ID", nil))
		return
	}

	var req models.UpdateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	product, err := h.products.Update(r.Context(), id, req)
	if err != nil {
		writeProductError(w, err)
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Product updated", product))
}

// Delete removes a product and its stored file.
// @Summary Delete product
// @Tags products
// @Produce json
// @Security BearerAuth
// @Param id path int true "Product ID"
// @Success 200 {object} models.APIResponse "Deleted"
// @Failure 404 {object} models.APIResponse "Not found"
// @Router /api/admin/products/{id} [delete]
func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request, rawID string) {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid product ID", nil))
		return
	}

	if err := h.products.Delete(r.Context(), id); err != nil {
		writeProductError(w, err)
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Product deleted", nil))
}

func writeProductError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse("Product not found", nil))
	case errors.Is(err, services.ErrInvalidProductInput):
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid product data", err))
	default:
		logger.Error("Product operation failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Product operation failed", err))
	}
}
