package service

import (
	"context"

	"complaint-intake-system/services/report-service/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ReportStore is the durable keyed storage the lifecycle engine runs on.
// Every read excludes soft-deleted reports; the Mongo implementation
// enforces that through a single filter funnel.
type ReportStore interface {
	Create(ctx context.Context, report *models.Report) error
	FindByProtocol(ctx context.Context, protocol string) (*models.Report, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error)
	List(ctx context.Context, filter models.ListFilter, page, limit int) ([]models.Report, int64, error)
	UpdateStatus(ctx context.Context, id primitive.ObjectID, from models.Status, entry models.HistoryEntry, daysOpen int) (*models.Report, error)
	AppendNote(ctx context.Context, id primitive.ObjectID, note models.InternalNote, daysOpen *int) (*models.Report, error)
	SoftDelete(ctx context.Context, id primitive.ObjectID) error
	Statistics(ctx context.Context) (models.Statistics, error)
}

// Notifier dispatches outbound events. Implementations must be safe to call
// from a goroutine; the engine never waits on them.
type Notifier interface {
	Publish(ctx context.Context, event models.NotificationEvent) error
}
