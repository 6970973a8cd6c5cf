package handlers

import (
	"encoding/json"
	"net/http"

	"audiostore/database"
	"audiostore/logger"
	"audiostore/models"
	"audiostore/utils"
)

// Login authenticates an admin account.
// @Summary Admin login
// @Description Authenticates an admin account and issues a JWT bearer token
// @Tags auth
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.APIResponse{data=models.LoginResponse} "Login succeeded"
// @Failure 400 {object} models.APIResponse "Invalid request"
// @Failure 401 {object} models.APIResponse "Invalid credentials"
// @Failure 500 {object} models.APIResponse "Server error"
// @Router /api/admin/login [post]
func Login(w http.ResponseWriter, r *http.Request) {
	requestID := r.Context().Value("request_id")

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid request body", err))
		return
	}

	var admin models.Admin
	query := "SELECT id, username, password, email, role, created_at, updated_at FROM admins WHERE username = ?"
	err := database.DB.QueryRow(query, req.Username).Scan(
		&admin.ID, &admin.Username, &admin.Password, &admin.Email,
		&admin.Role, &admin.CreatedAt, &admin.UpdatedAt,
	)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"request_id": requestID,
			"username":   req.Username,
		}).Warn("Login failed - user not found")

		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid credentials", nil))
		return
	}

	if !utils.CheckPassword(admin.Password, req.Password) {
		logger.WithFields(map[string]interface{}{
			"request_id": requestID,
			"username":   req.Username,
		}).Warn("Login failed - invalid password")

		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(models.ErrorResponse("Invalid credentials", nil))
		return
	}

	token, expiresAt, err := utils.GenerateToken(admin.ID, admin.Username, admin.Role)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"request_id": requestID,
			"admin_id":   admin.ID,
			"error":      err.Error(),
		}).Error("Failed to generate JWT token")

		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(models.ErrorResponse("Failed to generate token", err))
		return
	}

	admin.Password = ""
	json.NewEncoder(w).Encode(models.SuccessResponse("Login successful", models.LoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		Admin:     admin,
	}))
}

// GetMe returns the authenticated admin profile.
// @Summary Current admin
// @Description Returns the profile of the authenticated admin
// @Tags auth
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.APIResponse{data=models.Admin} "Profile"
// @Failure 401 {object} models.APIResponse "Authentication required"
// @Failure 404 {object} models.APIResponse "Admin not found"
// @Router /api/admin/me [get]
func GetMe(w http.ResponseWriter, r *http.Request) {
	adminID, _ := r.Context().Value("admin_id").(string)
	if adminID == "" {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(models.ErrorResponse("Authentication required", nil))
		return
	}

	var admin models.Admin
	query := "SELECT id, username, email, role, created_at, updated_at FROM admins WHERE id = ?"
	err := database.DB.QueryRow(query, adminID).Scan(
		&admin.ID, &admin.Username, &admin.Email,
		&admin.Role, &admin.CreatedAt, &admin.UpdatedAt,
	)
	if err != nil {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(models.ErrorResponse("Admin not found", nil))
		return
	}

	json.NewEncoder(w).Encode(models.SuccessResponse("Profile retrieved", admin))
}
