package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"schoold/internal/models"
	"schoold/internal/token"
)

const minPasswordLen = 8

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	if req.Role == "" {
		req.Role = models.RoleStudent
	}
	switch {
	case req.Name == "" || req.Email == "" || !strings.Contains(req.Email, "@"):
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	case len(req.Password) < minPasswordLen:
		respondError(w, http.StatusBadRequest, "weak_password")
		return
	case req.Role != models.RoleStudent && req.Role != models.RoleTeacher:
		// Admins are seeded or invited, never self-registered.
		respondError(w, http.StatusBadRequest, "invalid_role")
		return
	}

	u, err := a.auth.Register(r.Context(), req.Name, req.Email, req.Password, req.Role)
	if err != nil {
		a.respondAuthError(w, err)
		return
	}

	registrationsTotal.WithLabelValues(u.Role).Inc()

	msg := "verification email sent"
	if u.Role == models.RoleTeacher {
		msg = "registration received, awaiting admin approval"
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"id":      u.ID,
		"message": msg,
	})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	if tok == "" {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := a.auth.VerifyEmail(r.Context(), tok); err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "email verified"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	ident, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		loginsTotal.WithLabelValues("failure").Inc()
		a.respondAuthError(w, err)
		return
	}

	access, err := a.codec.IssueAccessToken(token.Claims{
		UserID:         ident.ID.String(),
		Email:          ident.Email,
		Role:           ident.Role,
		SessionVersion: ident.SessionVersion,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	refresh, err := a.codec.IssueRefreshToken(token.Claims{
		UserID: ident.ID.String(),
		Email:  ident.Email,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	loginsTotal.WithLabelValues("success").Inc()
	a.setAuthCookies(w, access, refresh)
	respondJSON(w, http.StatusOK, map[string]any{
		"user":          ident,
		"access_token":  access,
		"refresh_token": refresh,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	tok := ""
	if c, err := r.Cookie(refreshCookie); err == nil {
		tok = c.Value
	}
	if tok == "" {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeJSON(r, &req); err == nil {
			tok = req.RefreshToken
		}
	}
	if tok == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	claims, err := a.codec.VerifyRefresh(tok)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_token")
		return
	}
	uid, err := uuid.Parse(claims.UserID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid_token")
		return
	}

	ident, err := a.auth.Refresh(r.Context(), uid, claims.SessionVersion)
	if err != nil {
		a.respondAuthError(w, err)
		return
	}

	access, err := a.codec.IssueAccessToken(token.Claims{
		UserID:         ident.ID.String(),
		Email:          ident.Email,
		Role:           ident.Role,
		SessionVersion: ident.SessionVersion,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	a.setAccessCookie(w, access)
	respondJSON(w, http.StatusOK, map[string]any{"access_token": access})
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := a.auth.RequestReset(r.Context(), req.Email); err != nil {
		a.respondAuthError(w, err)
		return
	}

	otpRequestsTotal.Inc()
	// Generic on purpose: the response must not reveal whether the account exists.
	respondJSON(w, http.StatusOK, map[string]any{"message": "if the email exists, an otp has been sent"})
}

func (a *API) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		OTP   string `json:"otp"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	resetToken, err := a.auth.VerifyOTP(r.Context(), req.Email, req.OTP)
	if err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"reset_token": resetToken})
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		ResetToken  string `json:"resetToken"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.NewPassword) < minPasswordLen {
		respondError(w, http.StatusBadRequest, "weak_password")
		return
	}

	if err := a.auth.ResetPassword(r.Context(), req.Email, req.ResetToken, req.NewPassword); err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "password updated"})
}

func (a *API) handleCompleteSetup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if len(req.Password) < minPasswordLen {
		respondError(w, http.StatusBadRequest, "weak_password")
		return
	}

	if err := a.auth.CompleteSetup(r.Context(), req.Token, req.Password); err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "account ready"})
}

func (a *API) handleLogout(w http.ResponseWriter, _ *http.Request) {
	a.clearAuthCookies(w)
	respondJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	ident, ok := IdentityFrom(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	current, err := a.auth.UserByID(r.Context(), ident.ID)
	if err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"user": current})
}
