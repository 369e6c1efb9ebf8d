package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In-Progress"
	StatusResolved   Status = "Resolved"
	StatusArchived   Status = "Archived"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved, StatusArchived:
		return true
	}
	return false
}

// Terminal reports whether the status freezes the report's open duration.
func (s Status) Terminal() bool {
	return s == StatusResolved || s == StatusArchived
}

type Priority string

const (
	PriorityLow    Priority = "Low"
	PriorityMedium Priority = "Medium"
	PriorityHigh   Priority = "High"
	PriorityUrgent Priority = "Urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// slaDays is the maximum number of days a report may stay open per priority.
var slaDays = map[Priority]int{
	PriorityUrgent: 2,
	PriorityHigh:   5,
	PriorityMedium: 10,
	PriorityLow:    20,
}

type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Categories is the fixed table shared by create-validation and the
// categories listing endpoint.
var Categories = []Category{
	{ID: "corruption", Label: "Corruption"},
	{ID: "diversion-of-funds", Label: "Diversion of Funds"},
	{ID: "nepotism", Label: "Nepotism"},
	{ID: "abuse-of-power", Label: "Abuse of Power"},
	{ID: "bidding-fraud", Label: "Bidding Fraud"},
	{ID: "poor-service", Label: "Poor Service Delivery"},
	{ID: "infrastructure", Label: "Infrastructure Problems"},
	{ID: "other", Label: "Other"},
}

func ValidCategory(id string) bool {
	for _, c := range Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

// AllowedMimeTypes is the attachment whitelist.
var AllowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"image/jpeg":      true,
	"image/jpg":       true,
	"image/png":       true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

type Attachment struct {
	Name        string    `bson:"name" json:"name"`
	StoragePath string    `bson:"storage_path" json:"-"`
	Size        int64     `bson:"size" json:"size"`
	MimeType    string    `bson:"mime_type" json:"mime_type"`
	UploadedAt  time.Time `bson:"uploaded_at" json:"uploaded_at"`
}

type HistoryEntry struct {
	Timestamp      time.Time `bson:"timestamp" json:"timestamp"`
	PreviousStatus Status    `bson:"previous_status" json:"previous_status"`
	NewStatus      Status    `bson:"new_status" json:"new_status"`
	Reason         string    `bson:"reason,omitempty" json:"reason,omitempty"`
	Actor          string    `bson:"actor" json:"actor"`
}

type InternalNote struct {
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
	Text      string    `bson:"text" json:"text"`
	Actor     string    `bson:"actor" json:"actor"`
}

type Report struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Protocol    string             `bson:"protocol" json:"protocol"`
	Category    string             `bson:"category" json:"category"`
	Organ       string             `bson:"organ,omitempty" json:"organ,omitempty"`
	Location    string             `bson:"location,omitempty" json:"location,omitempty"`
	Description string             `bson:"description" json:"description"`

	// ContactEnc stores the reporter contact encrypted (AES-GCM).
	// It is never returned in any API response.
	ContactEnc string `bson:"contact_enc,omitempty" json:"-"`
	// Contact carries the decrypted contact on the internal by-id view only.
	Contact string `bson:"-" json:"contact,omitempty"`

	Status        Status         `bson:"status" json:"status"`
	Priority      Priority       `bson:"priority" json:"priority"`
	Attachments   []Attachment   `bson:"attachments" json:"attachments"`
	History       []HistoryEntry `bson:"history" json:"history"`
	InternalNotes []InternalNote `bson:"internal_notes" json:"internal_notes,omitempty"`

	RegisteredAt time.Time `bson:"registered_at" json:"registered_at"`
	UpdatedAt    time.Time `bson:"updated_at" json:"updated_at"`

	// Technical metadata captured at creation, excluded from read
	// projections by default.
	IP        string `bson:"ip,omitempty" json:"-"`
	UserAgent string `bson:"user_agent,omitempty" json:"-"`

	Deleted   bool       `bson:"deleted" json:"-"`
	DeletedAt *time.Time `bson:"deleted_at,omitempty" json:"-"`

	DaysOpen int `bson:"days_open" json:"days_open"`
}

// DaysBetween returns the whole days elapsed from one instant to another.
func DaysBetween(from, to time.Time) int {
	diff := to.Sub(from)
	if diff < 0 {
		return 0
	}
	return int(diff.Hours() / 24)
}

// IsOverdue reports whether the stored open duration exceeds the SLA
// threshold for the report's priority.
func (r *Report) IsOverdue() bool {
	limit, ok := slaDays[r.Priority]
	if !ok {
		return false
	}
	return r.DaysOpen > limit
}

// PublicView is the sanitized projection returned by the protocol lookup.
// Attachments are reduced to their original names; internal notes, contact
// and technical metadata never appear here.
type PublicView struct {
	Protocol     string    `json:"protocol"`
	Category     string    `json:"category"`
	Organ        string    `json:"organ,omitempty"`
	Location     string    `json:"location,omitempty"`
	Description  string    `json:"description"`
	Status       Status    `json:"status"`
	RegisteredAt time.Time `json:"registered_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Attachments  []string  `json:"attachments"`
}

func (r *Report) Public() PublicView {
	names := make([]string, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		names = append(names, a.Name)
	}
	return PublicView{
		Protocol:     r.Protocol,
		Category:     r.Category,
		Organ:        r.Organ,
		Location:     r.Location,
		Description:  r.Description,
		Status:       r.Status,
		RegisteredAt: r.RegisteredAt,
		UpdatedAt:    r.UpdatedAt,
		Attachments:  names,
	}
}

// ListFilter narrows administrative listings.
type ListFilter struct {
	Status   Status
	Category string
}

type Statistics struct {
	Total              int64   `json:"total"`
	Pending            int64   `json:"pending"`
	InProgress         int64   `json:"inProgress"`
	Resolved           int64   `json:"resolved"`
	ResolutionRate     float64 `json:"resolutionRate"`
	MeanResolutionDays float64 `json:"meanResolutionDays"`
}

// SystemActor is recorded on history entries and internal notes when no
// staff user is attached to the operation.
const SystemActor = "Sistema"

// Notification event types consumed by the notification service.
const (
	EventNewReport    = "new_report"
	EventStatusUpdate = "status_update"
)

type NotificationEvent struct {
	Type      string    `json:"type"`
	Protocol  string    `json:"protocol"`
	Category  string    `json:"category,omitempty"`
	Status    Status    `json:"status,omitempty"`
	Contact   string    `json:"contact,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
