package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"opsdesk.org/internal/audit"
	"opsdesk.org/internal/directory"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type membershipPayload struct {
	CompanyID   string `json:"company_id"`
	CompanyName string `json:"company_name"`
	Role        string `json:"role"`
}

type loginResponse struct {
	Token        string              `json:"token"`
	RefreshToken string              `json:"refresh_token"`
	UserID       string              `json:"user_id"`
	Email        string              `json:"email"`
	Name         string              `json:"name"`
	Companies    []membershipPayload `json:"companies"`
	ExpiresAt    time.Time           `json:"expires_at"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := a.dir.FindByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "directory lookup failed")
		return
	}
	if !user.Active() {
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := directory.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		_ = audit.LogEvent(r.Context(), "auth.login.rejected", map[string]any{"email": email})
		writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		return
	}
	// A session without memberships has no valid tenant context.
	if len(user.Memberships) == 0 {
		writeError(w, r, http.StatusForbidden, "no company memberships")
		return
	}

	a.respondWithTokens(w, r, user, "auth.token.issued")
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.RefreshToken) == "" {
		writeError(w, r, http.StatusBadRequest, "refresh_token is required")
		return
	}

	userID, err := a.issuer.redeemRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			_ = audit.LogEvent(r.Context(), "auth.refresh.rejected", nil)
			writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "refresh failed")
		return
	}

	user, err := a.dir.FindByID(r.Context(), userID)
	if err != nil || !user.Active() || len(user.Memberships) == 0 {
		writeError(w, r, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	a.respondWithTokens(w, r, user, "auth.token.refreshed")
}

func (a *API) respondWithTokens(w http.ResponseWriter, r *http.Request, user *directory.User, event string) {
	ctx := audit.WithActor(r.Context(), user.ID)

	accessToken, expiresAt, err := a.issuer.issueAccessToken(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}
	refreshToken, err := a.issuer.issueRefreshToken(ctx, user.ID)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	companies := make([]membershipPayload, 0, len(user.Memberships))
	for _, m := range user.Memberships {
		companies = append(companies, membershipPayload{
			CompanyID:   m.CompanyID,
			CompanyName: m.CompanyName,
			Role:        m.Role,
		})
	}

	_ = audit.LogEvent(ctx, event, map[string]any{
		"email":      user.Email,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Companies:    companies,
		ExpiresAt:    expiresAt,
	})
}
