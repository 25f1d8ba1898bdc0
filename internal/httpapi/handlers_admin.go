package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (a *API) handlePendingTeachers(w http.ResponseWriter, r *http.Request) {
	pending, err := a.auth.PendingTeachers(r.Context())
	if err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"teachers": pending})
}

func (a *API) handleApproveTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := a.auth.ApproveTeacher(r.Context(), id); err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "teacher approved"})
}

func (a *API) handleRejectTeacher(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := a.auth.RejectTeacher(r.Context(), id); err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "teacher rejected"})
}

func (a *API) handleInviteTeacher(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !strings.Contains(req.Email, "@") {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	id, err := a.auth.InviteTeacher(r.Context(), req.Name, req.Email)
	if err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "message": "invite sent"})
}

func (a *API) handleInviteStudent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string    `json:"name"`
		Email      string    `json:"email"`
		RollNumber int       `json:"rollNumber"`
		ClassID    uuid.UUID `json:"classId"`
		SectionID  uuid.UUID `json:"sectionId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || !strings.Contains(req.Email, "@") || req.ClassID == uuid.Nil || req.SectionID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	id, err := a.auth.InviteStudent(r.Context(), req.Name, req.Email, req.RollNumber, req.ClassID, req.SectionID)
	if err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": id, "message": "invite sent"})
}
