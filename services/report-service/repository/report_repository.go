package repository

import (
	"context"
	"errors"
	"math"
	"time"

	"complaint-intake-system/services/report-service/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

// readProjection hides technical metadata from every default read.
var readProjection = bson.M{"ip": 0, "user_agent": 0}

// publicProjection additionally hides staff-only and sensitive fields from
// the public protocol lookup.
var publicProjection = bson.M{"ip": 0, "user_agent": 0, "internal_notes": 0, "contact_enc": 0}

type ReportRepository struct {
	col *mongo.Collection
}

func NewReportRepository(db *mongo.Database) *ReportRepository {
	return &ReportRepository{col: db.Collection("reports")}
}

// EnsureIndexes creates the unique protocol index and the listing indexes.
// The unique index is the authoritative guard against protocol collisions.
func (r *ReportRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "protocol", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "registered_at", Value: -1}}},
		{Keys: bson.D{{Key: "category", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "deleted", Value: 1}, {Key: "registered_at", Value: -1}}},
	})
	return err
}

// notDeleted is the single funnel every read and write filter passes
// through. No query path reaches the collection without it.
func notDeleted(filter bson.M) bson.M {
	if filter == nil {
		filter = bson.M{}
	}
	filter["deleted"] = bson.M{"$ne": true}
	return filter
}

func (r *ReportRepository) Create(ctx context.Context, report *models.Report) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.InsertOne(ctx, report)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return &models.ConflictError{Protocol: report.Protocol}
		}
		return &models.StoreError{Op: "insert", Err: err}
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		report.ID = oid
	}
	return nil
}

func (r *ReportRepository) FindByProtocol(ctx context.Context, protocol string) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var report models.Report
	err := r.col.FindOne(ctx,
		notDeleted(bson.M{"protocol": protocol}),
		options.FindOne().SetProjection(publicProjection),
	).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &models.NotFoundError{Resource: "Protocol"}
		}
		return nil, &models.StoreError{Op: "find by protocol", Err: err}
	}
	return &report, nil
}

func (r *ReportRepository) FindByID(ctx context.Context, id primitive.ObjectID) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var report models.Report
	err := r.col.FindOne(ctx, notDeleted(bson.M{"_id": id})).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &models.NotFoundError{Resource: "Report"}
		}
		return nil, &models.StoreError{Op: "find by id", Err: err}
	}
	return &report, nil
}

func listFilter(filter models.ListFilter) bson.M {
	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	return notDeleted(query)
}

// List returns one page of non-deleted reports, most recent first, plus the
// total match count for pagination.
func (r *ReportRepository) List(ctx context.Context, filter models.ListFilter, page, limit int) ([]models.Report, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*opTimeout)
	defer cancel()

	query := listFilter(filter)

	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, &models.StoreError{Op: "count", Err: err}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "registered_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit)).
		SetProjection(readProjection)

	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, &models.StoreError{Op: "find", Err: err}
	}
	defer cursor.Close(ctx)

	reports := []models.Report{}
	if err := cursor.All(ctx, &reports); err != nil {
		return nil, 0, &models.StoreError{Op: "decode", Err: err}
	}
	return reports, total, nil
}

// UpdateStatus applies a status transition guarded by the status observed by
// the caller. A concurrent transition makes the precondition miss, which is
// reported as models.ErrConcurrentUpdate so the caller can re-read and
// retry instead of silently dropping a history entry.
func (r *ReportRepository) UpdateStatus(ctx context.Context, id primitive.ObjectID, from models.Status, entry models.HistoryEntry, daysOpen int) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"status":     entry.NewStatus,
			"updated_at": entry.Timestamp,
			"days_open":  daysOpen,
		},
		"$push": bson.M{"history": entry},
	}

	var report models.Report
	err := r.col.FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id, "status": from}),
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&report)
	if err == nil {
		return &report, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, &models.StoreError{Op: "update status", Err: err}
	}

	// Precondition missed: either the report is gone or someone else moved
	// it first. Distinguish so the caller knows whether to retry.
	exists, err := r.col.CountDocuments(ctx, notDeleted(bson.M{"_id": id}))
	if err != nil {
		return nil, &models.StoreError{Op: "update status", Err: err}
	}
	if exists == 0 {
		return nil, &models.NotFoundError{Resource: "Report"}
	}
	return nil, models.ErrConcurrentUpdate
}

// AppendNote pushes one internal note. daysOpen is non-nil only while the
// report was last seen in a non-terminal status.
func (r *ReportRepository) AppendNote(ctx context.Context, id primitive.ObjectID, note models.InternalNote, daysOpen *int) (*models.Report, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set := bson.M{"updated_at": note.Timestamp}
	if daysOpen != nil {
		set["days_open"] = *daysOpen
	}
	update := bson.M{
		"$set":  set,
		"$push": bson.M{"internal_notes": note},
	}

	var report models.Report
	err := r.col.FindOneAndUpdate(ctx,
		notDeleted(bson.M{"_id": id}),
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&report)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, &models.NotFoundError{Resource: "Report"}
		}
		return nil, &models.StoreError{Op: "append note", Err: err}
	}
	return &report, nil
}

// SoftDelete flips the deletion flag. Deleting an already-deleted report is
// a NotFoundError because deleted reports are invisible to every filter.
func (r *ReportRepository) SoftDelete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	now := time.Now()
	res, err := r.col.UpdateOne(ctx,
		notDeleted(bson.M{"_id": id}),
		bson.M{"$set": bson.M{"deleted": true, "deleted_at": now, "updated_at": now}},
	)
	if err != nil {
		return &models.StoreError{Op: "soft delete", Err: err}
	}
	if res.MatchedCount == 0 {
		return &models.NotFoundError{Resource: "Report"}
	}
	return nil
}

// Statistics aggregates counts and the raw mean resolution time over
// non-deleted reports. Rounding policy lives in the engine.
func (r *ReportRepository) Statistics(ctx context.Context) (models.Statistics, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*opTimeout)
	defer cancel()

	var stats models.Statistics
	var err error

	if stats.Total, err = r.col.CountDocuments(ctx, notDeleted(nil)); err != nil {
		return stats, &models.StoreError{Op: "count total", Err: err}
	}
	if stats.Pending, err = r.col.CountDocuments(ctx, listFilter(models.ListFilter{Status: models.StatusPending})); err != nil {
		return stats, &models.StoreError{Op: "count pending", Err: err}
	}
	if stats.InProgress, err = r.col.CountDocuments(ctx, listFilter(models.ListFilter{Status: models.StatusInProgress})); err != nil {
		return stats, &models.StoreError{Op: "count in progress", Err: err}
	}
	if stats.Resolved, err = r.col.CountDocuments(ctx, listFilter(models.ListFilter{Status: models.StatusResolved})); err != nil {
		return stats, &models.StoreError{Op: "count resolved", Err: err}
	}

	if stats.Resolved > 0 {
		pipeline := []bson.M{
			{"$match": listFilter(models.ListFilter{Status: models.StatusResolved})},
			{"$project": bson.M{
				"days": bson.M{"$floor": bson.M{"$divide": bson.A{
					bson.M{"$subtract": bson.A{"$updated_at", "$registered_at"}},
					1000 * 60 * 60 * 24,
				}}},
			}},
			{"$group": bson.M{"_id": nil, "mean_days": bson.M{"$avg": "$days"}}},
		}

		cursor, err := r.col.Aggregate(ctx, pipeline)
		if err != nil {
			return stats, &models.StoreError{Op: "aggregate resolution time", Err: err}
		}
		defer cursor.Close(ctx)

		var result []struct {
			MeanDays float64 `bson:"mean_days"`
		}
		if err := cursor.All(ctx, &result); err != nil {
			return stats, &models.StoreError{Op: "decode aggregation", Err: err}
		}
		if len(result) > 0 && !math.IsNaN(result[0].MeanDays) {
			stats.MeanResolutionDays = result[0].MeanDays
		}
	}

	return stats, nil
}
