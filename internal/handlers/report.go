package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/reported-users/apiserver/internal/services"
	"github.com/reported-users/apiserver/types"
)

const (
	maxMultipartMemory = 16 << 20
	maxEvidenceBytes   = 8 << 20
	formFieldEvidence  = "evidence"
)

// ReportHandler provides HTTP handlers for reported-user records.
type ReportHandler struct {
	reportService *services.ReportService
	userService   *services.UserService
}

// NewReportHandler constructs a handler with the provided services.
func NewReportHandler(reportService *services.ReportService, userService *services.UserService) *ReportHandler {
	return &ReportHandler{
		reportService: reportService,
		userService:   userService,
	}
}

// ReportRouter registers report routes on the given router. All routes
// require authentication; evidence routes are registered only when
// storage is configured.
func ReportRouter(
	r chi.Router,
	reportService *services.ReportService,
	userService *services.UserService,
	authMiddleware func(http.Handler) http.Handler,
	evidenceEnabled bool,
) {
	handler := NewReportHandler(reportService, userService)

	r.Use(authMiddleware)
	r.Get("/", handler.ListOwn)
	r.Post("/", handler.CreateReport)
	r.Get("/drafts/admin", handler.ListDrafts)
	r.Get("/search", handler.Search)
	r.Route("/{reportID}", func(r chi.Router) {
		r.Get("/", handler.GetReport)
		r.Put("/", handler.UpdateReport)
		r.Delete("/", handler.DeleteReport)
		r.Put("/status", handler.UpdateStatus)
		if evidenceEnabled {
			r.Post("/evidence", handler.UploadEvidence)
			r.Get("/evidence", handler.ListEvidence)
			r.Get("/evidence/*", handler.DownloadEvidence)
		}
	})
}

func (h *ReportHandler) ListOwn(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	reports, err := h.reportService.ListOwn(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *ReportHandler) ListDrafts(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	reports, err := h.reportService.ListDrafts(r.Context(), actor)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *ReportHandler) Search(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	reports, err := h.reportService.Search(r.Context(), actor, r.URL.Query().Get("query"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reports)
}

func (h *ReportHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	report, err := h.reportService.GetByID(r.Context(), actor, chi.URLParam(r, "reportID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	report, err := h.reportService.Create(r.Context(), actor, services.CreateReportInput{
		Name:        strings.TrimSpace(req.Name),
		IDNumber:    strings.TrimSpace(req.IDNumber),
		Fine:        req.Fine,
		Location:    req.Location,
		Description: req.Description,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (h *ReportHandler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req UpdateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	input := services.UpdateReportInput{
		Name:        strings.TrimSpace(req.Name),
		IDNumber:    strings.TrimSpace(req.IDNumber),
		Location:    req.Location,
		Description: req.Description,
	}
	if req.Status != nil {
		status := types.ReportStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		input.Status = &status
	}

	report, err := h.reportService.Update(r.Context(), actor, chi.URLParam(r, "reportID"), input)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *ReportHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req StatusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	status := types.ReportStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err := h.reportService.SetStatus(r.Context(), actor, chi.URLParam(r, "reportID"), status); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusUpdateResponse{Success: true})
}

func (h *ReportHandler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.reportService.SoftDelete(r.Context(), actor, chi.URLParam(r, "reportID")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ReportHandler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	file, err := parseEvidenceFile(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	key, err := h.reportService.AttachEvidence(
		r.Context(),
		actor,
		chi.URLParam(r, "reportID"),
		file.Filename,
		file.ContentType,
		file.Data,
	)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, EvidenceUploadResponse{Key: key})
}

func (h *ReportHandler) ListEvidence(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	keys, err := h.reportService.ListEvidence(r.Context(), actor, chi.URLParam(r, "reportID"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, EvidenceListResponse{Keys: keys})
}

func (h *ReportHandler) DownloadEvidence(w http.ResponseWriter, r *http.Request) {
	actor, err := resolveActor(r, h.userService)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	key := chi.URLParam(r, "*")
	reader, err := h.reportService.OpenEvidence(r.Context(), actor, chi.URLParam(r, "reportID"), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	defer reader.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, reader)
}

type CreateReportRequest struct {
	Name        string `json:"name"`
	IDNumber    string `json:"id_number"`
	Fine        int    `json:"fine"`
	Location    string `json:"location"`
	Description string `json:"description"`
}

// UpdateReportRequest carries field edits. A present status field
// requests an admin-gated lifecycle change; the fine, date and deleted
// fields are not editable through updates.
type UpdateReportRequest struct {
	Name        string  `json:"name"`
	IDNumber    string  `json:"id_number"`
	Location    string  `json:"location"`
	Description string  `json:"description"`
	Status      *string `json:"status"`
}

type StatusUpdateRequest struct {
	Status string `json:"status"`
}

type StatusUpdateResponse struct {
	Success bool `json:"success"`
}

type EvidenceUploadResponse struct {
	Key string `json:"key"`
}

type EvidenceListResponse struct {
	Keys []string `json:"keys"`
}

// EvidenceFile represents an uploaded evidence file.
type EvidenceFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

func parseEvidenceFile(r *http.Request) (EvidenceFile, error) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		return EvidenceFile{}, errors.New("invalid multipart form")
	}
	if r.MultipartForm == nil {
		return EvidenceFile{}, errors.New("missing form data")
	}

	files := r.MultipartForm.File[formFieldEvidence]
	if len(files) == 0 {
		return EvidenceFile{}, errors.New("evidence file is required")
	}
	if len(files) > 1 {
		return EvidenceFile{}, errors.New("only one evidence file is allowed")
	}

	fileHeader := files[0]
	file, err := fileHeader.Open()
	if err != nil {
		return EvidenceFile{}, errors.New("failed to read evidence file")
	}

	data, err := readFileLimited(file, maxEvidenceBytes)
	_ = file.Close()
	if err != nil {
		return EvidenceFile{}, err
	}

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return EvidenceFile{
		Filename:    fileHeader.Filename,
		ContentType: contentType,
		Data:        data,
	}, nil
}

func readFileLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
