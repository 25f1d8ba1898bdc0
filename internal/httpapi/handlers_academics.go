package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"schoold/internal/bus"
	"schoold/internal/ledger"
	"schoold/internal/models"
)

func (a *API) requireAcademics(w http.ResponseWriter) bool {
	if a.academics == nil {
		respondError(w, http.StatusServiceUnavailable, "service_unavailable")
		return false
	}
	return true
}

func attachmentsJSON(paths []string) []byte {
	if paths == nil {
		paths = []string{}
	}
	data, err := json.Marshal(paths)
	if err != nil {
		return []byte("[]")
	}
	return data
}

func (a *API) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	if !a.requireAcademics(w) {
		return
	}

	ident, _ := IdentityFrom(r.Context())
	var req struct {
		Title       string    `json:"title"`
		Description *string   `json:"description"`
		SubjectID   uuid.UUID `json:"subjectId"`
		ClassID     uuid.UUID `json:"classId"`
		SectionID   uuid.UUID `json:"sectionId"`
		DueAt       time.Time `json:"dueAt"`
		Attachments []string  `json:"attachments"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Title) == "" || req.SubjectID == uuid.Nil ||
		req.ClassID == uuid.Nil || req.SectionID == uuid.Nil || req.DueAt.IsZero() {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	teacherID, err := a.academics.TeacherIDForUser(r.Context(), ident.ID)
	if err != nil {
		a.respondAuthError(w, err)
		return
	}

	assignment := &models.Assignment{
		TeacherID:   teacherID,
		SubjectID:   req.SubjectID,
		ClassID:     req.ClassID,
		SectionID:   req.SectionID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		DueAt:       req.DueAt,
		Status:      "published",
		Attachments: attachmentsJSON(req.Attachments),
	}
	if err := a.academics.CreateAssignment(r.Context(), assignment); err != nil {
		a.log.Error().Err(err).Msg("create assignment")
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": assignment.ID})
}

func (a *API) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	if !a.requireAcademics(w) {
		return
	}

	ident, _ := IdentityFrom(r.Context())
	assignmentID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	var req struct {
		Attachments []string `json:"attachments"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	studentID, err := a.academics.StudentIDForUser(r.Context(), ident.ID)
	if err != nil {
		a.respondAuthError(w, err)
		return
	}

	submission := &models.Submission{
		AssignmentID: assignmentID,
		StudentID:    studentID,
		Status:       "submitted",
		Attachments:  attachmentsJSON(req.Attachments),
	}
	if err := a.academics.CreateSubmission(r.Context(), submission); err != nil {
		a.log.Error().Err(err).Msg("create submission")
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	a.publishJSON(r.Context(), bus.SubjectSubmissionCreated, map[string]any{
		"type":          "submission_created",
		"submission_id": submission.ID,
		"assignment_id": assignmentID,
		"student_id":    studentID,
	})
	respondJSON(w, http.StatusCreated, map[string]any{"id": submission.ID})
}

func (a *API) handleCreateModule(w http.ResponseWriter, r *http.Request) {
	if !a.requireAcademics(w) {
		return
	}

	ident, _ := IdentityFrom(r.Context())
	var req struct {
		Title       string     `json:"title"`
		Description *string    `json:"description"`
		SubjectID   uuid.UUID  `json:"subjectId"`
		ClassID     uuid.UUID  `json:"classId"`
		SectionID   *uuid.UUID `json:"sectionId"`
		Attachments []string   `json:"attachments"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if strings.TrimSpace(req.Title) == "" || req.SubjectID == uuid.Nil || req.ClassID == uuid.Nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	module := &models.Module{
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		SubjectID:   req.SubjectID,
		ClassID:     req.ClassID,
		SectionID:   req.SectionID,
		CreatedBy:   ident.ID,
		Attachments: attachmentsJSON(req.Attachments),
	}
	if err := a.academics.CreateModule(r.Context(), module); err != nil {
		a.log.Error().Err(err).Msg("create module")
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"id": module.ID})
}

// handleDeleteModule removes the module row after clearing its whole blob
// prefix. Module attachments can be large, so a failed prefix delete aborts
// the operation instead of orphaning the blobs.
func (a *API) handleDeleteModule(w http.ResponseWriter, r *http.Request) {
	if !a.requireAcademics(w) {
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	module, err := a.academics.ModuleByID(r.Context(), id)
	if err != nil {
		a.log.Error().Err(err).Msg("load module")
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if module == nil {
		respondError(w, http.StatusNotFound, "not_found")
		return
	}

	if a.ledger != nil {
		prefix := ledger.OwnerPrefix("modules", id.String())
		if err := a.ledger.DeleteAllAttachments(r.Context(), ledger.OwnerModule, id, prefix); err != nil {
			a.log.Error().Err(err).Str("prefix", prefix).Msg("delete module attachments")
			respondError(w, http.StatusBadGateway, "storage_unavailable")
			return
		}
	}

	if err := a.academics.DeleteModule(r.Context(), id); err != nil {
		a.respondAuthError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "module deleted"})
}

// Fire-and-forget: submission and signup events are best-effort signals.
func (a *API) publishJSON(ctx context.Context, subject string, payload map[string]any) {
	if a.events == nil {
		return
	}
	if err := a.events.Publish(ctx, subject, payload); err != nil {
		a.log.Debug().Err(err).Str("subject", subject).Msg("publish event")
	}
}
