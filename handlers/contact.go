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

// ContactHandler serves the storefront contact form and its admin inbox.
type ContactHandler struct {
	contacts services.ContactService
}

// NewContactHandler builds the handler.
func NewContactHandler(contacts services.ContactService) *ContactHandler {
	return &ContactHandler{contacts: contacts}
}

// Create stores a visitor inquiry.
// @Summary Submit contact inquiry
// @Tags contacts
// @Accept json
// @Produce json
// @Param request body models.CreateContactRequest true "Inquiry"
// @Success 201 {object} models.APIResponse{data=models.Contact} "Created"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Router /api/contacts [post]
func (h *ContactHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateContactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	contact, err := h.contacts.Create(r.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrInvalidContactInput) {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(models.ErrorResponse("Invalid contact data", err))
			return
		}
		logger.Error("Failed to store contact inquiry: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to submit inquiry", err))
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(models.SuccessResponse("Inquiry submitted", contact))
}

// List returns inquiries for the admin inbox, paged.
// @Summary List contact inquiries
// @Tags contacts
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param page_size query int false "Page size" default(20)
// @Success 200 {object} models.PaginatedResponse{data=[]models.Contact} "Page of inquiries"
// @Failure 500 {object} models.APIResponse "Server error"
// @Router /api/admin/contacts [get]
func (h *ContactHandler) List(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	contacts, total, err := h.contacts.List(r.Context(), page, pageSize)
	if err != nil {
		logger.Error("Failed to list contacts: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to list inquiries", err))
		return
	}

	totalPages := (total + pageSize - 1) / pageSize
	json.NewEncoder(w).Encode(models.PaginatedResponse{
		Status:  "success",
		Message: "Inquiries retrieved",
		Data:    contacts,
		Meta: models.Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalPages: totalPages,
			TotalCount: total,
		},
	})
}

// Delete removes an inquiry.
// @Summary Delete contact inquiry
// @Tags contacts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Contact ID"
// @Success 200 {object} models.APIResponse "Deleted"
// @Failure 404 {object} models.APIResponse "Not found"
// @Router /api/admin/contacts/{id} [delete]
func (h *ContactHandler) Delete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.contacts.Delete(r.Context(), id); err != nil {
		if errors.Is(err, services.ErrContactNotFound) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(models.ErrorResponse("Inquiry not found", nil))
			return
		}
		logger.Error("Failed to delete contact inquiry: %v", err)
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to delete inquiry", err))
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Inquiry deleted", nil))
}
