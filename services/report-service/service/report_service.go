package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"complaint-intake-system/pkg/security"
	"complaint-intake-system/services/report-service/models"
	"complaint-intake-system/services/report-service/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	descriptionMinLen = 20
	descriptionMaxLen = 5000
	maxAttachments    = 5

	// createAttempts bounds protocol regeneration when the unique index
	// reports a collision.
	createAttempts = 3
	// transitionAttempts bounds optimistic retries against concurrent
	// status writers.
	transitionAttempts = 3

	notifyTimeout = 5 * time.Second
)

type CreateReportInput struct {
	Category    string
	Organ       string
	Location    string
	Description string
	Contact     string
	Attachments []models.Attachment
	IP          string
	UserAgent   string
}

// ReportService is the report lifecycle engine. It owns validation, status
// transitions with their history trail, soft-delete and derived statistics;
// storage and notification are injected collaborators.
type ReportService struct {
	store    ReportStore
	notifier Notifier
	now      func() time.Time
}

func NewReportService(store ReportStore, notifier Notifier) *ReportService {
	return &ReportService{
		store:    store,
		notifier: notifier,
		now:      time.Now,
	}
}

// Create validates the submission, issues a fresh protocol and persists the
// report as Pending. Protocol generation retries on collision; the store's
// unique index is the authoritative guarantee.
func (s *ReportService) Create(ctx context.Context, input CreateReportInput) (*models.Report, error) {
	if !models.ValidCategory(input.Category) {
		return nil, &models.ValidationError{Field: "category", Message: "Invalid category"}
	}

	description := strings.TrimSpace(input.Description)
	if n := utf8.RuneCountInString(description); n < descriptionMinLen {
		return nil, &models.ValidationError{Field: "description", Message: fmt.Sprintf("Description must have at least %d characters", descriptionMinLen)}
	} else if n > descriptionMaxLen {
		return nil, &models.ValidationError{Field: "description", Message: fmt.Sprintf("Description cannot exceed %d characters", descriptionMaxLen)}
	}

	if len(input.Attachments) > maxAttachments {
		return nil, &models.ValidationError{Field: "attachments", Message: fmt.Sprintf("Too many files. Maximum: %d files", maxAttachments)}
	}
	for _, a := range input.Attachments {
		if !models.AllowedMimeTypes[a.MimeType] {
			return nil, &models.ValidationError{Field: "attachments", Message: "File type not allowed. Use PDF, JPG, PNG, DOC or DOCX"}
		}
	}

	contact := utils.SanitizeText(input.Contact)
	contactEnc := ""
	if contact != "" {
		enc, err := security.EncryptString(contact)
		if err != nil {
			return nil, fmt.Errorf("failed to protect contact: %w", err)
		}
		contactEnc = enc
	}

	now := s.now()
	report := &models.Report{
		Category:      input.Category,
		Organ:         utils.SanitizeText(input.Organ),
		Location:      utils.SanitizeText(input.Location),
		Description:   description,
		ContactEnc:    contactEnc,
		Status:        models.StatusPending,
		Priority:      models.PriorityMedium,
		Attachments:   input.Attachments,
		History:       []models.HistoryEntry{},
		InternalNotes: []models.InternalNote{},
		RegisteredAt:  now,
		UpdatedAt:     now,
		IP:            input.IP,
		UserAgent:     input.UserAgent,
	}
	if report.Attachments == nil {
		report.Attachments = []models.Attachment{}
	}

	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		report.Protocol = utils.GenerateProtocol()
		err = s.store.Create(ctx, report)
		if err == nil {
			s.notifyAsync(models.NotificationEvent{
				Type:      models.EventNewReport,
				Protocol:  report.Protocol,
				Category:  report.Category,
				CreatedAt: now,
			})
			return report, nil
		}
		var conflict *models.ConflictError
		if !errors.As(err, &conflict) {
			return nil, err
		}
	}
	return nil, err
}

// LookupByProtocol returns the public-safe projection of one report.
func (s *ReportService) LookupByProtocol(ctx context.Context, protocol string) (*models.PublicView, error) {
	report, err := s.store.FindByProtocol(ctx, strings.TrimSpace(protocol))
	if err != nil {
		return nil, err
	}
	view := report.Public()
	return &view, nil
}

// List returns one page of the administrative listing, most recent first.
func (s *ReportService) List(ctx context.Context, filter models.ListFilter, page, limit int) ([]models.Report, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return s.store.List(ctx, filter, page, limit)
}

// GetByID returns the full internal record, contact decrypted.
func (s *ReportService) GetByID(ctx context.Context, id string) (*models.Report, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	report, err := s.store.FindByID(ctx, oid)
	if err != nil {
		return nil, err
	}
	s.revealContact(report)
	return report, nil
}

// TransitionStatus moves a report to newStatus, appending the history entry
// that captures the status it left behind. Concurrent transitions are
// retried so no entry is ever lost.
func (s *ReportService) TransitionStatus(ctx context.Context, id string, newStatus models.Status, reason, actor string) (*models.Report, error) {
	if !newStatus.Valid() {
		return nil, &models.ValidationError{Field: "status", Message: "Invalid status"}
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if actor == "" {
		actor = models.SystemActor
	}

	for attempt := 0; attempt < transitionAttempts; attempt++ {
		report, err := s.store.FindByID(ctx, oid)
		if err != nil {
			return nil, err
		}

		now := s.now()
		entry := models.HistoryEntry{
			Timestamp:      now,
			PreviousStatus: report.Status,
			NewStatus:      newStatus,
			Reason:         utils.SanitizeText(reason),
			Actor:          actor,
		}

		// Days open freezes the moment a report leaves a non-terminal
		// status; afterwards the stored value is carried unchanged.
		daysOpen := report.DaysOpen
		if !report.Status.Terminal() {
			daysOpen = models.DaysBetween(report.RegisteredAt, now)
		}

		updated, err := s.store.UpdateStatus(ctx, oid, report.Status, entry, daysOpen)
		if errors.Is(err, models.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return nil, err
		}

		if updated.ContactEnc != "" {
			if contact, decErr := security.DecryptString(updated.ContactEnc); decErr == nil {
				s.notifyAsync(models.NotificationEvent{
					Type:      models.EventStatusUpdate,
					Protocol:  updated.Protocol,
					Status:    newStatus,
					Contact:   contact,
					CreatedAt: now,
				})
			} else {
				log.Printf("[WARN] Could not decrypt contact for %s: %v", updated.Protocol, decErr)
			}
		}
		s.revealContact(updated)
		return updated, nil
	}
	return nil, &models.StoreError{Op: "transition status", Err: models.ErrConcurrentUpdate}
}

// AddInternalNote appends a staff-only annotation. Status and history are
// untouched.
func (s *ReportService) AddInternalNote(ctx context.Context, id, text, actor string) (*models.Report, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, &models.ValidationError{Field: "text", Message: "Note text is required"}
	}
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	if actor == "" {
		actor = models.SystemActor
	}

	report, err := s.store.FindByID(ctx, oid)
	if err != nil {
		return nil, err
	}

	now := s.now()
	note := models.InternalNote{Timestamp: now, Text: text, Actor: actor}

	var daysOpen *int
	if !report.Status.Terminal() {
		d := models.DaysBetween(report.RegisteredAt, now)
		daysOpen = &d
	}

	updated, err := s.store.AppendNote(ctx, oid, note, daysOpen)
	if err != nil {
		return nil, err
	}
	s.revealContact(updated)
	return updated, nil
}

// SoftDelete hides a report from every read path. There is no way back.
func (s *ReportService) SoftDelete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	return s.store.SoftDelete(ctx, oid)
}

// Statistics computes the aggregate view over non-deleted reports.
func (s *ReportService) Statistics(ctx context.Context) (models.Statistics, error) {
	stats, err := s.store.Statistics(ctx)
	if err != nil {
		return stats, err
	}
	stats.MeanResolutionDays = math.Round(stats.MeanResolutionDays)
	if stats.Total > 0 {
		rate := float64(stats.Resolved) / float64(stats.Total) * 100
		stats.ResolutionRate = math.Round(rate*100) / 100
	}
	return stats, nil
}

func (s *ReportService) notifyAsync(event models.NotificationEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := s.notifier.Publish(ctx, event); err != nil {
			log.Printf("[WARN] Failed to publish %s event for %s: %v", event.Type, event.Protocol, err)
		}
	}()
}

func (s *ReportService) revealContact(report *models.Report) {
	if report.ContactEnc == "" {
		return
	}
	if contact, err := security.DecryptString(report.ContactEnc); err == nil {
		report.Contact = contact
	}
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(strings.TrimSpace(id))
	if err != nil {
		return primitive.NilObjectID, &models.ValidationError{Field: "id", Message: "Invalid report ID"}
	}
	return oid, nil
}
