package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"audiostore/logger"
	"audiostore/metrics"
	"audiostore/models"
	"audiostore/services"
	"audiostore/storage"
	"audiostore/utils"
)

// DownloadLinkHandler serves the admin/public download-link API.
type DownloadLinkHandler struct {
	links   services.DownloadLinkService
	metrics *metrics.Metrics
}

// NewDownloadLinkHandler builds the handler.
func NewDownloadLinkHandler(links services.DownloadLinkService, m *metrics.Metrics) *DownloadLinkHandler {
	return &DownloadLinkHandler{links: links, metrics: m}
}

// Create issues a download link manually.
// @Summary Create download link
// @Description Creates a download link for a product without a purchase session
// @Tags download-links
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateDownloadLinkRequest true "Link parameters"
// @Success 201 {object} models.APIResponse{data=models.DownloadLinkWithProduct} "Created"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 404 {object} models.APIResponse "Product not found"
// @Failure 409 {object} models.APIResponse "Product has no file"
// @Failure 502 {object} models.APIResponse "Object storage unavailable"
// @Router /api/admin/download-links [post]
func (h *DownloadLinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateDownloadLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	link, product, err := h.links.IssueOrGet(r.Context(), req)
	if err != nil {
		h.metrics.LinkIssued("admin", "error")
		writeIssueError(w, err)
		return
	}

	h.metrics.LinkIssued("admin", "success")
	logger.WithFields(map[string]interface{}{
		"download_link_id": link.ID,
		"product_id":       product.ID,
	}).Info("Download link created")

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.SuccessResponse("Download link created", models.DownloadLinkWithProduct{
		DownloadLink: link,
		Product:      product.Public(),
	}))
}

// List returns download links, paged.
// @Summary List download links
// @Tags download-links
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} models.PaginatedResponse{data=[]models.DownloadLink} "Page of links"
// @Failure 500 {object} models.APIResponse "Server error"
// @Router /api/admin/download-links [get]
func (h *DownloadLinkHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	links, total, err := h.links.List(r.Context(), page, pageSize)
	if err != nil {
		logger.Error("Failed to list download links: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to list download links", err))
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	json.NewEncoder(w).Encode(models.PaginatedResponse{
		Status:  "success",
		Message: "Download links retrieved",
		Data:    links,
		Meta: models.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
			TotalCount: total,
		},
	})
}

// Get returns one download link with its product.
// @Summary Get download link
// @Description Returns a download link; expired or exhausted links answer 410
// @Tags download-links
// @Produce json
// @Param id path string true "Download link ID"
// @Success 200 {object} models.APIResponse{data=models.DownloadLinkWithProduct} "Link"
// @Failure 404 {object} models.APIResponse "Not found"
// @Failure 410 {object} models.APIResponse "Expired or quota exhausted"
// @Router /api/download-links/{id} [get]
func (h *DownloadLinkHandler) Get(w http.ResponseWriter, r *http.Request, id string) {
	link, product, err := h.links.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrLinkNotFound) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse("Download link not found", nil))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to load download link", err))
		return
	}

	if link.QuotaExhausted() || link.IsExpired(utils.NowUTC()) {
		w.WriteHeader(http.StatusGone)
		json.NewEncoder(w).Encode(models.ErrorResponse("This download link is no longer valid", nil))
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Download link retrieved", models.DownloadLinkWithProduct{
		DownloadLink: link,
		Product:      product.Public(),
	}))
}

// Delete removes a download link.
// @Summary Delete download link
// @Tags download-links
// @Produce json
// @Security BearerAuth
// @Param id path string true "Download link ID"
// @Success 200 {object} models.APIResponse "Deleted"
// @Failure 404 {object} models.APIResponse "Not found"
// @Router /api/admin/download-links/{id} [delete]
func (h *DownloadLinkHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.links.Delete(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrLinkNotFound) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse("Download link not found", nil))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to delete download link", err))
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Download link deleted", nil))
}

// writeIssueError maps issuance failures to the API status table.
func writeIssueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrInvalidLinkInput):
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid download link parameters", err))
	case errors.Is(err, services.ErrProductNotFound):
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse("Product not found", nil))
	case errors.Is(err, services.ErrProductHasNoFile):
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(models.ErrorResponse("Product has no downloadable file", nil))
	case errors.Is(err, storage.ErrStorageUnavailable):
		logger.Error("Object storage unavailable: %v", err)
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(models.ErrorResponse("Object storage unavailable", nil))
	default:
		logger.Error("Download link issuance failed: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to issue download link", err))
	}
}
