package httpapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"schoold/internal/ledger"
)

const maxDirectUploadBytes = 64 << 20

func (a *API) requireLedger(w http.ResponseWriter) bool {
	if a.ledger == nil {
		respondError(w, http.StatusServiceUnavailable, "storage_unavailable")
		return false
	}
	return true
}

func parseOwner(s string) (ledger.Owner, bool) {
	owner := ledger.Owner(s)
	if _, err := owner.Table(); err != nil {
		return "", false
	}
	return owner, true
}

func (a *API) handleSignedUpload(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}

	var req struct {
		Context  string   `json:"context"`
		OwnerIDs []string `json:"ownerIds"`
		Filename string   `json:"filename"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	if req.Context == "" || req.Filename == "" || len(req.OwnerIDs) == 0 {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	path := ledger.BuildPath(req.Context, req.Filename, req.OwnerIDs...)
	url, err := a.ledger.CreateSignedUploadURL(r.Context(), path)
	if err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("sign upload url")
		respondError(w, http.StatusBadGateway, "storage_unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"url": url, "path": path})
}

func (a *API) handleSignedDownload(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}

	path := r.URL.Query().Get("path")
	if path == "" {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	url, err := a.ledger.SignedDownloadURL(r.Context(), path)
	if err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("sign download url")
		respondError(w, http.StatusBadGateway, "storage_unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"url": url})
}

// handleDirectUpload accepts multipart bytes server-side for clients that
// cannot perform a presigned PUT themselves.
func (a *API) handleDirectUpload(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxDirectUploadBytes)
	if err := r.ParseMultipartForm(maxDirectUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	kind := r.FormValue("context")
	ownerIDs := strings.Split(r.FormValue("ownerIds"), ",")
	if kind == "" || len(ownerIDs) == 0 || ownerIDs[0] == "" {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	defer file.Close()

	path := ledger.BuildPath(kind, header.Filename, ownerIDs...)
	if err := a.ledger.Upload(r.Context(), path, file, header.Size, header.Header.Get("Content-Type")); err != nil {
		a.log.Error().Err(err).Str("path", path).Msg("direct upload")
		respondError(w, http.StatusBadGateway, "storage_unavailable")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"path": path})
}

func (a *API) handleRecordAttachment(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}

	var req struct {
		Owner   string    `json:"owner"`
		OwnerID uuid.UUID `json:"ownerId"`
		Path    string    `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	owner, ok := parseOwner(req.Owner)
	if !ok || req.OwnerID == uuid.Nil || req.Path == "" {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := a.ledger.RecordAttachment(r.Context(), owner, req.OwnerID, req.Path); err != nil {
		a.log.Error().Err(err).Str("path", req.Path).Msg("record attachment")
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"message": "attachment recorded"})
}

func (a *API) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}

	var req struct {
		Owner   string    `json:"owner"`
		OwnerID uuid.UUID `json:"ownerId"`
		Path    string    `json:"path"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	owner, ok := parseOwner(req.Owner)
	if !ok || req.OwnerID == uuid.Nil || req.Path == "" {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := a.ledger.DeleteAttachment(r.Context(), owner, req.OwnerID, req.Path); err != nil {
		a.log.Error().Err(err).Str("path", req.Path).Msg("delete attachment")
		respondError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "attachment deleted"})
}

// handleDeleteAllAttachments clears an owner's whole prefix. Storage failure
// propagates here, unlike single-attachment deletes.
func (a *API) handleDeleteAllAttachments(w http.ResponseWriter, r *http.Request) {
	if !a.requireLedger(w) {
		return
	}

	var req struct {
		Owner   string    `json:"owner"`
		OwnerID uuid.UUID `json:"ownerId"`
		Context string    `json:"context"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	owner, ok := parseOwner(req.Owner)
	if !ok || req.OwnerID == uuid.Nil || req.Context == "" {
		respondError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	prefix := ledger.OwnerPrefix(req.Context, req.OwnerID.String())
	if err := a.ledger.DeleteAllAttachments(r.Context(), owner, req.OwnerID, prefix); err != nil {
		a.log.Error().Err(err).Str("prefix", prefix).Msg("delete attachment prefix")
		respondError(w, http.StatusBadGateway, "storage_unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"message": "attachments deleted"})
}
