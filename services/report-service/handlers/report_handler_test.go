package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"testing"
	"time"

	"complaint-intake-system/services/report-service/models"
	"complaint-intake-system/services/report-service/service"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// memStore backs handler tests with the same visibility rules as the real
// repository.
type memStore struct {
	reports   map[primitive.ObjectID]*models.Report
	protocols map[string]primitive.ObjectID
}

func newMemStore() *memStore {
	return &memStore{
		reports:   make(map[primitive.ObjectID]*models.Report),
		protocols: make(map[string]primitive.ObjectID),
	}
}

func (m *memStore) visible(id primitive.ObjectID) *models.Report {
	r, ok := m.reports[id]
	if !ok || r.Deleted {
		return nil
	}
	return r
}

func (m *memStore) Create(_ context.Context, report *models.Report) error {
	if _, exists := m.protocols[report.Protocol]; exists {
		return &models.ConflictError{Protocol: report.Protocol}
	}
	report.ID = primitive.NewObjectID()
	clone := *report
	m.reports[report.ID] = &clone
	m.protocols[report.Protocol] = report.ID
	return nil
}

func (m *memStore) FindByProtocol(_ context.Context, protocol string) (*models.Report, error) {
	if id, ok := m.protocols[protocol]; ok {
		if r := m.visible(id); r != nil {
			clone := *r
			return &clone, nil
		}
	}
	return nil, &models.NotFoundError{Resource: "Protocol"}
}

func (m *memStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.Report, error) {
	r := m.visible(id)
	if r == nil {
		return nil, &models.NotFoundError{Resource: "Report"}
	}
	clone := *r
	return &clone, nil
}

func (m *memStore) List(_ context.Context, filter models.ListFilter, page, limit int) ([]models.Report, int64, error) {
	var matched []models.Report
	for _, r := range m.reports {
		if r.Deleted {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Category != "" && r.Category != filter.Category {
			continue
		}
		matched = append(matched, *r)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].RegisteredAt.After(matched[j].RegisteredAt)
	})
	total := int64(len(matched))
	start := (page - 1) * limit
	if start >= len(matched) {
		return []models.Report{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id primitive.ObjectID, from models.Status, entry models.HistoryEntry, daysOpen int) (*models.Report, error) {
	r := m.visible(id)
	if r == nil {
		return nil, &models.NotFoundError{Resource: "Report"}
	}
	if r.Status != from {
		return nil, models.ErrConcurrentUpdate
	}
	r.Status = entry.NewStatus
	r.UpdatedAt = entry.Timestamp
	r.DaysOpen = daysOpen
	r.History = append(r.History, entry)
	clone := *r
	return &clone, nil
}

func (m *memStore) AppendNote(_ context.Context, id primitive.ObjectID, note models.InternalNote, daysOpen *int) (*models.Report, error) {
	r := m.visible(id)
	if r == nil {
		return nil, &models.NotFoundError{Resource: "Report"}
	}
	r.InternalNotes = append(r.InternalNotes, note)
	r.UpdatedAt = note.Timestamp
	if daysOpen != nil {
		r.DaysOpen = *daysOpen
	}
	clone := *r
	return &clone, nil
}

func (m *memStore) SoftDelete(_ context.Context, id primitive.ObjectID) error {
	r := m.visible(id)
	if r == nil {
		return &models.NotFoundError{Resource: "Report"}
	}
	now := time.Now()
	r.Deleted = true
	r.DeletedAt = &now
	return nil
}

func (m *memStore) Statistics(_ context.Context) (models.Statistics, error) {
	var stats models.Statistics
	for _, r := range m.reports {
		if r.Deleted {
			continue
		}
		stats.Total++
		switch r.Status {
		case models.StatusPending:
			stats.Pending++
		case models.StatusInProgress:
			stats.InProgress++
		case models.StatusResolved:
			stats.Resolved++
		}
	}
	return stats, nil
}

type noopNotifier struct{}

func (noopNotifier) Publish(context.Context, models.NotificationEvent) error { return nil }

type memAttachments struct {
	puts []string
}

func (m *memAttachments) Put(_ context.Context, originalName, _ string, _ int64, r io.Reader) (string, error) {
	io.Copy(io.Discard, r)
	m.puts = append(m.puts, originalName)
	return "stored/" + originalName, nil
}

type envelope struct {
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Pagination *pageBlock      `json:"pagination"`
}

type pageBlock struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

func newTestHandler() (*ReportHandler, *memStore, *memAttachments) {
	store := newMemStore()
	attachments := &memAttachments{}
	svc := service.NewReportService(store, noopNotifier{})
	return NewReportHandler(svc, attachments), store, attachments
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return env
}

func jsonBody(t *testing.T, v interface{}) *bytes.Reader {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(raw)
}

func validCreateBody() map[string]string {
	return map[string]string{
		"category":    "corruption",
		"organ":       "City Hall",
		"location":    "Downtown",
		"description": "Officials demanding bribes for construction permits downtown.",
		"contact":     "alice@example.com",
	}
}

func createReport(t *testing.T, h *ReportHandler) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/reports", jsonBody(t, validCreateBody()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ListCreate(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	var data struct {
		Protocol string `json:"protocol"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode create data: %v", err)
	}
	return data.Protocol
}

func TestCreateReportJSON(t *testing.T) {
	h, store, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/reports", jsonBody(t, validCreateBody()))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ListCreate(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if !env.Success || env.Message != "Report registered successfully" {
		t.Errorf("envelope = %+v", env)
	}
	var data struct {
		Protocol string        `json:"protocol"`
		Status   models.Status `json:"status"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if !strings.HasPrefix(data.Protocol, "DEN-") {
		t.Errorf("protocol = %q", data.Protocol)
	}
	if data.Status != models.StatusPending {
		t.Errorf("status = %q, want %q", data.Status, models.StatusPending)
	}
	if len(store.reports) != 1 {
		t.Errorf("stored reports = %d, want 1", len(store.reports))
	}
}

func TestCreateReportMultipart(t *testing.T) {
	h, _, attachments := newTestHandler()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for field, value := range validCreateBody() {
		mw.WriteField(field, value)
	}
	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="attachments"; filename="evidence.pdf"`},
		"Content-Type":        {"application/pdf"},
	})
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	part.Write([]byte("%PDF-1.4 fake"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/reports", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ListCreate(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(attachments.puts) != 1 || attachments.puts[0] != "evidence.pdf" {
		t.Errorf("stored uploads = %v, want [evidence.pdf]", attachments.puts)
	}
}

func TestCreateReportRejectsUploads(t *testing.T) {
	tests := []struct {
		name    string
		build   func(mw *multipart.Writer)
		message string
	}{
		{
			name: "too many files",
			build: func(mw *multipart.Writer) {
				for i := 0; i < 6; i++ {
					part, _ := mw.CreatePart(textproto.MIMEHeader{
						"Content-Disposition": {fmt.Sprintf(`form-data; name="attachments"; filename="f%d.pdf"`, i)},
						"Content-Type":        {"application/pdf"},
					})
					part.Write([]byte("x"))
				}
			},
			message: "Too many files. Maximum: 5 files",
		},
		{
			name: "disallowed type",
			build: func(mw *multipart.Writer) {
				part, _ := mw.CreatePart(textproto.MIMEHeader{
					"Content-Disposition": {`form-data; name="attachments"; filename="movie.mp4"`},
					"Content-Type":        {"video/mp4"},
				})
				part.Write([]byte("x"))
			},
			message: "File type not allowed. Use PDF, JPG, PNG, DOC or DOCX",
		},
		{
			name: "unexpected file field",
			build: func(mw *multipart.Writer) {
				part, _ := mw.CreatePart(textproto.MIMEHeader{
					"Content-Disposition": {`form-data; name="payload"; filename="f.pdf"`},
					"Content-Type":        {"application/pdf"},
				})
				part.Write([]byte("x"))
			},
			message: "Unexpected file field",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, store, _ := newTestHandler()

			var buf bytes.Buffer
			mw := multipart.NewWriter(&buf)
			for field, value := range validCreateBody() {
				mw.WriteField(field, value)
			}
			tt.build(mw)
			mw.Close()

			req := httptest.NewRequest(http.MethodPost, "/api/reports", &buf)
			req.Header.Set("Content-Type", mw.FormDataContentType())
			rec := httptest.NewRecorder()
			h.ListCreate(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
			}
			env := decodeEnvelope(t, rec)
			if env.Success || env.Message != tt.message {
				t.Errorf("envelope = %+v, want message %q", env, tt.message)
			}
			if len(store.reports) != 0 {
				t.Errorf("rejected submission was persisted")
			}
		})
	}
}

func TestCreateReportShortDescription(t *testing.T) {
	h, _, _ := newTestHandler()

	body := validCreateBody()
	body["description"] = "too short"
	req := httptest.NewRequest(http.MethodPost, "/api/reports", jsonBody(t, body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ListCreate(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Message != "Description must have at least 20 characters" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestListReportsPagination(t *testing.T) {
	h, _, _ := newTestHandler()
	for i := 0; i < 3; i++ {
		createReport(t, h)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/reports?page=1&limit=2", nil)
	rec := httptest.NewRecorder()
	h.ListCreate(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	env := decodeEnvelope(t, rec)
	if env.Pagination == nil {
		t.Fatal("no pagination block")
	}
	if env.Pagination.Total != 3 || env.Pagination.Pages != 2 || env.Pagination.Limit != 2 {
		t.Errorf("pagination = %+v", env.Pagination)
	}
	var items []json.RawMessage
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len(items) = %d, want 2", len(items))
	}
}

func TestCategoriesEndpoint(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/reports/categories", nil)
	rec := httptest.NewRecorder()
	h.Categories(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var categories []models.Category
	if err := json.Unmarshal(env.Data, &categories); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if len(categories) != 8 {
		t.Errorf("len(categories) = %d, want 8", len(categories))
	}
}

func TestLookupByProtocol(t *testing.T) {
	h, _, _ := newTestHandler()
	protocol := createReport(t, h)

	req := httptest.NewRequest(http.MethodGet, "/api/reports/protocol/"+protocol, nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	if !strings.Contains(body, protocol) {
		t.Errorf("response does not echo protocol: %s", body)
	}
	for _, forbidden := range []string{"alice@example.com", "contact", "internal_notes"} {
		if strings.Contains(body, forbidden) {
			t.Errorf("public lookup leaks %q: %s", forbidden, body)
		}
	}
}

func TestLookupUnknownProtocol(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/reports/protocol/DEN-2099-ZZZZ0000", nil)
	rec := httptest.NewRecorder()
	h.Lookup(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	if env.Message != "Protocol not found" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestUpdateStatus(t *testing.T) {
	h, store, _ := newTestHandler()
	createReport(t, h)

	var id primitive.ObjectID
	for reportID := range store.reports {
		id = reportID
	}

	req := httptest.NewRequest(http.MethodPut, "/api/reports/"+id.Hex()+"/status",
		strings.NewReader(`{"status":"In-Progress","reason":"assigned"}`))
	rec := httptest.NewRecorder()
	h.Detail(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	stored := store.reports[id]
	if stored.Status != models.StatusInProgress {
		t.Errorf("stored status = %q", stored.Status)
	}
	if len(stored.History) != 1 || stored.History[0].Actor != "Sistema" {
		t.Errorf("history = %+v", stored.History)
	}

	req = httptest.NewRequest(http.MethodPut, "/api/reports/"+id.Hex()+"/status",
		strings.NewReader(`{"status":"Closed"}`))
	rec = httptest.NewRecorder()
	h.Detail(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid status accepted: %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Invalid status" {
		t.Errorf("message = %q", env.Message)
	}
}

func TestAddNoteAndDelete(t *testing.T) {
	h, store, _ := newTestHandler()
	createReport(t, h)

	var id primitive.ObjectID
	for reportID := range store.reports {
		id = reportID
	}

	req := httptest.NewRequest(http.MethodPost, "/api/reports/"+id.Hex()+"/note",
		strings.NewReader(`{"text":"forwarded to audit team"}`))
	rec := httptest.NewRecorder()
	h.Detail(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("note status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(store.reports[id].InternalNotes) != 1 {
		t.Errorf("notes = %+v", store.reports[id].InternalNotes)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/reports/"+id.Hex(), nil)
	rec = httptest.NewRecorder()
	h.Detail(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if env := decodeEnvelope(t, rec); env.Message != "Report deleted successfully" {
		t.Errorf("message = %q", env.Message)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/reports/"+id.Hex(), nil)
	rec = httptest.NewRecorder()
	h.Detail(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}
}

func TestStatisticsEndpoint(t *testing.T) {
	h, _, _ := newTestHandler()
	createReport(t, h)

	req := httptest.NewRequest(http.MethodGet, "/api/statistics", nil)
	rec := httptest.NewRecorder()
	h.Statistics(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	env := decodeEnvelope(t, rec)
	var stats models.Statistics
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if stats.Total != 1 || stats.Pending != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUnknownRoute(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/api/reports/abc/def/ghi", nil)
	rec := httptest.NewRecorder()
	h.Detail(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["success"] != false || body["path"] != "/api/reports/abc/def/ghi" {
		t.Errorf("body = %+v", body)
	}
}
