package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"complaint-intake-system/pkg/middleware"
	"complaint-intake-system/pkg/response"
	"complaint-intake-system/services/report-service/models"
	"complaint-intake-system/services/report-service/service"
)

const (
	maxFileSize   = 10 << 20 // 10MB per file
	maxFiles      = 5
	fileFieldName = "attachments"
)

// AttachmentStore ingests uploaded files and returns the stored object name.
// The engine only ever sees the resulting metadata.
type AttachmentStore interface {
	Put(ctx context.Context, originalName, contentType string, size int64, r io.Reader) (string, error)
}

type ReportHandler struct {
	service     *service.ReportService
	attachments AttachmentStore
}

func NewReportHandler(svc *service.ReportService, attachments AttachmentStore) *ReportHandler {
	return &ReportHandler{service: svc, attachments: attachments}
}

// ListCreate serves the /api/reports collection endpoint.
func (h *ReportHandler) ListCreate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w, r)
	case http.MethodPost:
		h.create(w, r)
	default:
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (h *ReportHandler) create(w http.ResponseWriter, r *http.Request) {
	input := service.CreateReportInput{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var body struct {
			Category    string `json:"category"`
			Organ       string `json:"organ"`
			Location    string `json:"location"`
			Description string `json:"description"`
			Contact     string `json:"contact"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid request payload")
			return
		}
		input.Category = body.Category
		input.Organ = body.Organ
		input.Location = body.Location
		input.Description = body.Description
		input.Contact = body.Contact
	} else {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			response.Error(w, http.StatusBadRequest, "Invalid multipart payload")
			return
		}
		input.Category = r.FormValue("category")
		input.Organ = r.FormValue("organ")
		input.Location = r.FormValue("location")
		input.Description = r.FormValue("description")
		input.Contact = r.FormValue("contact")

		attachments, err := h.ingestFiles(r)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		input.Attachments = attachments
	}

	report, err := h.service.Create(r.Context(), input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.Success(w, http.StatusCreated, "Report registered successfully", map[string]interface{}{
		"protocol":      report.Protocol,
		"registered_at": report.RegisteredAt,
		"status":        report.Status,
	})
}

// ingestFiles validates the multipart files against the upload policy and
// streams each one into the attachment store.
func (h *ReportHandler) ingestFiles(r *http.Request) ([]models.Attachment, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}

	for field := range r.MultipartForm.File {
		if field != fileFieldName {
			return nil, &models.ValidationError{Field: "attachments", Message: "Unexpected file field"}
		}
	}

	files := r.MultipartForm.File[fileFieldName]
	if len(files) == 0 {
		return nil, nil
	}
	if len(files) > maxFiles {
		return nil, &models.ValidationError{Field: "attachments", Message: fmt.Sprintf("Too many files. Maximum: %d files", maxFiles)}
	}

	attachments := make([]models.Attachment, 0, len(files))
	for _, header := range files {
		if header.Size > maxFileSize {
			return nil, &models.ValidationError{Field: "attachments", Message: "File too large. Maximum size: 10MB"}
		}
		mimeType := header.Header.Get("Content-Type")
		if !models.AllowedMimeTypes[mimeType] {
			return nil, &models.ValidationError{Field: "attachments", Message: "File type not allowed. Use PDF, JPG, PNG, DOC or DOCX"}
		}

		file, err := header.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload: %w", err)
		}

		objectName, err := h.attachments.Put(r.Context(), header.Filename, mimeType, header.Size, file)
		file.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to store attachment: %w", err)
		}

		attachments = append(attachments, models.Attachment{
			Name:        header.Filename,
			StoragePath: objectName,
			Size:        header.Size,
			MimeType:    mimeType,
			UploadedAt:  time.Now(),
		})
	}
	return attachments, nil
}

func (h *ReportHandler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit < 1 {
		limit = 10
	}

	filter := models.ListFilter{
		Status:   models.Status(r.URL.Query().Get("status")),
		Category: r.URL.Query().Get("category"),
	}

	reports, total, err := h.service.List(r.Context(), filter, page, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	response.List(w, reports, response.Pagination{
		Page:  page,
		Limit: limit,
		Total: total,
		Pages: int(math.Ceil(float64(total) / float64(limit))),
	})
}

// Categories serves the static category table.
func (h *ReportHandler) Categories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	response.Success(w, http.StatusOK, "", models.Categories)
}

// Lookup serves the public protocol lookup under /api/reports/protocol/.
func (h *ReportHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	protocol := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reports/protocol/"), "/")
	if protocol == "" {
		response.Error(w, http.StatusBadRequest, "Missing protocol")
		return
	}

	view, err := h.service.LookupByProtocol(r.Context(), protocol)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "", view)
}

// Detail serves the staff operations under /api/reports/{id}.
func (h *ReportHandler) Detail(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reports/"), "/")
	parts := strings.Split(rest, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		switch r.Method {
		case http.MethodGet:
			h.getByID(w, r, parts[0])
		case http.MethodDelete:
			h.softDelete(w, r, parts[0])
		default:
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case len(parts) == 2 && parts[1] == "status":
		if r.Method != http.MethodPut {
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.updateStatus(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "note":
		if r.Method != http.MethodPost {
			response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		h.addNote(w, r, parts[0])
	default:
		NotFound(w, r)
	}
}

func (h *ReportHandler) getByID(w http.ResponseWriter, r *http.Request, id string) {
	report, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "", report)
}

func (h *ReportHandler) updateStatus(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	report, err := h.service.TransitionStatus(r.Context(), id, models.Status(body.Status), body.Reason, middleware.GetActor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Status updated successfully", report)
}

func (h *ReportHandler) addNote(w http.ResponseWriter, r *http.Request, id string) {
	var body struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.Error(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	report, err := h.service.AddInternalNote(r.Context(), id, body.Text, middleware.GetActor(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Note added successfully", report)
}

func (h *ReportHandler) softDelete(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.SoftDelete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "Report deleted successfully", nil)
}

// Statistics serves the aggregate view over non-deleted reports.
func (h *ReportHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		response.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	stats, err := h.service.Statistics(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.Success(w, http.StatusOK, "", stats)
}

// NotFound is the structured fallback for unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusNotFound, map[string]interface{}{
		"success": false,
		"message": "Route not found",
		"path":    r.URL.Path,
	})
}

// writeServiceError translates engine errors into the response envelope.
// The engine itself never formats HTTP responses.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *models.ValidationError
	if errors.As(err, &validation) {
		response.Error(w, http.StatusBadRequest, validation.Message)
		return
	}

	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		response.Error(w, http.StatusNotFound, notFound.Resource+" not found")
		return
	}

	var conflict *models.ConflictError
	if errors.As(err, &conflict) {
		middleware.LogError(middleware.GetTraceID(r), "Protocol generation exhausted retries", err)
		response.Error(w, http.StatusInternalServerError, "Could not issue a unique protocol, please try again")
		return
	}

	middleware.LogError(middleware.GetTraceID(r), "Unhandled service error", err)
	response.Error(w, http.StatusInternalServerError, "Internal server error")
}
