package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bazaarverse/numrent/internal/models"
	"github.com/bazaarverse/numrent/pkg/database"
	"github.com/bazaarverse/numrent/pkg/logger"
)

type NumberRepository struct {
	collection *mongo.Collection
	log        logger.Logger
}

func NewNumberRepository(db *database.MongoDB, log logger.Logger) *NumberRepository {
	return &NumberRepository{
		collection: db.Collection("numbers"),
		log:        log,
	}
}

func (r *NumberRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "activation_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "purchased_at", Value: -1}},
		},
		{
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "purchased_at", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create number indexes: %w", err)
	}

	return nil
}

func (r *NumberRepository) Create(ctx context.Context, record *models.NumberRecord) error {
	now := time.Now()
	record.PurchasedAt = now
	record.LastCheckedAt = now
	record.UpdatedAt = now

	result, err := r.collection.InsertOne(ctx, record)
	if err != nil {
		return fmt.Errorf("failed to insert number record: %w", err)
	}

	record.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *NumberRepository) FindByActivationID(ctx context.Context, activationID string) (*models.NumberRecord, error) {
	var record models.NumberRecord
	err := r.collection.FindOne(ctx, bson.M{"activation_id": activationID}).Decode(&record)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find number record: %w", err)
	}

	return &record, nil
}

// TouchChecked bumps the poll timestamp without changing the status.
func (r *NumberRepository) TouchChecked(ctx context.Context, activationID string) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{"last_checked_at": now, "updated_at": now},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"activation_id": activationID}, update)
	if err != nil {
		return fmt.Errorf("failed to touch number record: %w", err)
	}

	return nil
}

// RecordPollResult stores the status reported by the provider's status query.
// Only records still WAITING match the filter, so a terminal status is never
// overwritten; callers use TouchChecked for wait-code replies.
func (r *NumberRepository) RecordPollResult(ctx context.Context, activationID string, status models.NumberStatus, code *string, completedAt *time.Time) error {
	now := time.Now()
	set := bson.M{
		"status":          status,
		"last_checked_at": now,
		"updated_at":      now,
	}
	if code != nil {
		set["otp_code"] = *code
	}
	if completedAt != nil {
		set["completed_at"] = completedAt
	}

	filter := bson.M{"activation_id": activationID, "status": models.StatusWaiting}
	_, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to record poll result: %w", err)
	}

	return nil
}

// Transition performs the compare-and-set status change that guards refunds:
// the update only matches while the record still has status from, so at most
// one caller wins a WAITING-to-terminal race.
func (r *NumberRepository) Transition(ctx context.Context, activationID string, from, to models.NumberStatus, clearCode bool) (bool, error) {
	now := time.Now()
	set := bson.M{
		"status":       to,
		"cancelled_at": &now,
		"updated_at":   now,
	}
	if clearCode {
		set["otp_code"] = nil
	}

	filter := bson.M{"activation_id": activationID, "status": from}
	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return false, fmt.Errorf("failed to transition number record: %w", err)
	}

	return result.MatchedCount > 0, nil
}

// FindStale returns WAITING records purchased before the cutoff, oldest first.
func (r *NumberRepository) FindStale(ctx context.Context, before time.Time) ([]*models.NumberRecord, error) {
	filter := bson.M{
		"status":       models.StatusWaiting,
		"purchased_at": bson.M{"$lt": before},
	}
	opts := options.Find().SetSort(bson.D{{Key: "purchased_at", Value: 1}})

	return r.findAll(ctx, filter, opts)
}

// FindActive returns a user's WAITING records purchased within the display
// window, newest first.
func (r *NumberRepository) FindActive(ctx context.Context, userID primitive.ObjectID, since time.Time) ([]*models.NumberRecord, error) {
	filter := bson.M{
		"user_id":      userID,
		"status":       models.StatusWaiting,
		"purchased_at": bson.M{"$gte": since},
	}
	opts := options.Find().SetSort(bson.D{{Key: "purchased_at", Value: -1}})

	return r.findAll(ctx, filter, opts)
}

// FindRecent returns a user's most recent records, auto-cancelled excluded.
func (r *NumberRepository) FindRecent(ctx context.Context, userID primitive.ObjectID, limit int64) ([]*models.NumberRecord, error) {
	filter := bson.M{
		"user_id": userID,
		"status":  bson.M{"$ne": models.StatusAutoCancelled},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "purchased_at", Value: -1}}).
		SetLimit(limit)

	return r.findAll(ctx, filter, opts)
}

// History pages through a user's records. Auto-cancelled records never appear
// in history regardless of the status filter.
func (r *NumberRepository) History(ctx context.Context, userID primitive.ObjectID, status models.NumberStatus, page, limit int) ([]*models.NumberRecord, int64, error) {
	filter := bson.M{
		"user_id": userID,
		"status":  bson.M{"$ne": models.StatusAutoCancelled},
	}
	if status != "" && status != models.StatusAutoCancelled {
		filter["status"] = status
	}

	total, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count history: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "purchased_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	records, err := r.findAll(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

func (r *NumberRepository) CountByUser(ctx context.Context, userID primitive.ObjectID, status models.NumberStatus, excludeAutoCancelled bool) (int64, error) {
	filter := bson.M{"user_id": userID}
	if status != "" {
		filter["status"] = status
	} else if excludeAutoCancelled {
		filter["status"] = bson.M{"$ne": models.StatusAutoCancelled}
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count numbers: %w", err)
	}

	return count, nil
}

func (r *NumberRepository) CountByStatus(ctx context.Context, status models.NumberStatus) (int64, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count numbers: %w", err)
	}

	return count, nil
}

// TotalRevenue sums the cost of all RECEIVED records.
func (r *NumberRepository) TotalRevenue(ctx context.Context) (float64, error) {
	pipeline := []bson.M{
		{"$match": bson.M{"status": models.StatusReceived}},
		{"$group": bson.M{
			"_id":           nil,
			"total_revenue": bson.M{"$sum": "$cost"},
		}},
	}

	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("failed to aggregate revenue: %w", err)
	}
	defer cursor.Close(ctx)

	var result struct {
		TotalRevenue float64 `bson:"total_revenue"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&result); err != nil {
			return 0, fmt.Errorf("failed to decode revenue: %w", err)
		}
	}

	return result.TotalRevenue, nil
}

// RecentAll returns the most recent records across all users for the admin
// dashboard.
func (r *NumberRepository) RecentAll(ctx context.Context, limit int64) ([]*models.NumberRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "purchased_at", Value: -1}}).
		SetLimit(limit)

	return r.findAll(ctx, bson.M{}, opts)
}

// DeleteByUser removes all of a user's records; used by account deletion.
func (r *NumberRepository) DeleteByUser(ctx context.Context, userID primitive.ObjectID) error {
	_, err := r.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("failed to delete number records: %w", err)
	}

	return nil
}

func (r *NumberRepository) findAll(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.NumberRecord, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find number records: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*models.NumberRecord
	for cursor.Next(ctx) {
		var record models.NumberRecord
		if err := cursor.Decode(&record); err != nil {
			return nil, fmt.Errorf("failed to decode number record: %w", err)
		}
		records = append(records, &record)
	}

	return records, nil
}
