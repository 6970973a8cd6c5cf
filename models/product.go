package models

// Product is a purchasable downloadable audio item.
type Product struct {
	ID          int64   `json:"id" db:"id"`
	Name        string  `json:"name" db:"name"`
	Description string  `json:"description" db:"description"`
	Price       float64 `json:"price" db:"price"`
	Category    string  `json:"category" db:"category"`
	Tags        string  `json:"tags" db:"tags"` // comma-separated display tags
	ImageURL    string  `json:"image_url" db:"image_url"`
	FileURL     string  `json:"file_url" db:"file_url"` // object storage key of the audio asset
	CreatedAt   string  `json:"created_at" db:"created_at"`
	UpdatedAt   string  `json:"updated_at" db:"updated_at"`
}

// HasFile reports whether the product references a stored object.
func (p *Product) HasFile() bool {
	return p.FileURL != ""
}

// PublicProduct hides the raw storage key from storefront responses.
type PublicProduct struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Category    string  `json:"category"`
	Tags        string  `json:"tags"`
	ImageURL    string  `json:"image_url"`
}

// Public strips admin-only fields.
func (p *Product) Public() PublicProduct {
	return PublicProduct{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Category:    p.Category,
		Tags:        p.Tags,
		ImageURL:    p.ImageURL,
	}
}

// CreateProductRequest is the admin product creation payload.
type CreateProductRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" binding:"required,min=0"`
	Category    string  `json:"category"`
	Tags        string  `json:"tags"`
	ImageURL    string  `json:"image_url"`
	FileURL     string  `json:"file_url"`
}

// UpdateProductRequest is the admin product update payload.
type UpdateProductRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Price       *float64 `json:"price"`
	Category    string   `json:"category"`
	Tags        string   `json:"tags"`
	ImageURL    string   `json:"image_url"`
	FileURL     *string  `json:"file_url"`
}
