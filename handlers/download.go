package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"audiostore/logger"
	"audiostore/metrics"
	"audiostore/models"
	"audiostore/services"
)

// DownloadHandler resolves redirect tokens into signed storage URLs.
type DownloadHandler struct {
	links   services.DownloadLinkService
	metrics *metrics.Metrics
}

// NewDownloadHandler builds the handler.
func NewDownloadHandler(links services.DownloadLinkService, m *metrics.Metrics) *DownloadHandler {
	return &DownloadHandler{links: links, metrics: m}
}

// Resolve verifies the token, consumes one download slot, and redirects the
// buyer to the signed storage URL.
// @Summary Resolve download token
// @Description Redirects a valid download token to a time-limited storage URL
// @Tags download
// @Param token query string true "Redirect token"
// @Success 302 "Redirect to signed URL"
// @Failure 400 {object} models.APIResponse "Missing token"
// @Failure 401 {object} models.APIResponse "Invalid token"
// @Failure 404 {object} models.APIResponse "Link not found"
// @Failure 410 {object} models.APIResponse "Quota exceeded or link expired"
// @Router /api/download [get]
func (h *DownloadHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		h.metrics.Redirect("bad_request")
		writeJSONError(w, http.StatusBadRequest, "Download token is required", nil)
		return
	}

	signedURL, err := h.links.ResolveRedirect(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidToken):
			h.metrics.Redirect("invalid_token")
			writeJSONError(w, http.StatusUnauthorized, "This download link is not valid", nil)
		case errors.Is(err, services.ErrLinkNotFound):
			h.metrics.Redirect("not_found")
			writeJSONError(w, http.StatusNotFound, "This download link no longer exists", nil)
		case errors.Is(err, services.ErrQuotaExceeded):
			h.metrics.Redirect("quota_exceeded")
			writeJSONError(w, http.StatusGone, "This download link has reached its download limit", nil)
		case errors.Is(err, services.ErrLinkExpired):
			h.metrics.Redirect("expired")
			writeJSONError(w, http.StatusGone, "This download link has expired", nil)
		case errors.Is(err, services.ErrNoSignedURL):
			h.metrics.Redirect("no_signed_url")
			writeJSONError(w, http.StatusGone, "This download link is no longer valid", nil)
		default:
			h.metrics.Redirect("error")
			logger.Error("Failed to resolve download token: %v", err)
			writeJSONError(w, http.StatusInternalServerError, "Failed to resolve download", err)
		}
		return
	}

	h.metrics.Redirect("success")
	http.Redirect(w, r, signedURL, http.StatusFound)
}

// writeJSONError emits an error envelope with explicit content type; the
// download route skips the JSON-header middleware because its success path
// is a redirect.
func writeJSONError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(models.ErrorResponse(message, err))
}
