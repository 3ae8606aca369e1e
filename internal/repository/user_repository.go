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

type UserRepository struct {
	collection *mongo.Collection
	log        logger.Logger
}

func NewUserRepository(db *database.MongoDB, log logger.Logger) *UserRepository {
	return &UserRepository{
		collection: db.Collection("users"),
		log:        log,
	}
}

func (r *UserRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "username", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "role", Value: 1}, {Key: "is_active", Value: 1}},
		},
	}

	_, err := r.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	return nil
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.CreatedAt = time.Now()
	user.UpdatedAt = time.Now()

	result, err := r.collection.InsertOne(ctx, user)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.ErrUsernameTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	user.ID = result.InsertedID.(primitive.ObjectID)
	return nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, nil
	}

	var user models.User
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.collection.FindOne(ctx, bson.M{"username": username}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) UpdateLastLogin(ctx context.Context, id primitive.ObjectID) error {
	now := time.Now()
	update := bson.M{
		"$set": bson.M{
			"last_login_at": &now,
			"updated_at":    now,
		},
	}

	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}

	return nil
}

// Debit atomically charges an account. The balance guard lives in the filter
// so concurrent purchases on the same account cannot overdraw it.
func (r *UserRepository) Debit(ctx context.Context, id string, amount float64) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrAccountNotFound
	}

	filter := bson.M{"_id": objectID, "balance": bson.M{"$gte": amount}}
	update := bson.M{
		"$inc": bson.M{"balance": -amount, "total_spent": amount},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}

	if result.MatchedCount == 0 {
		user, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if user == nil {
			return models.ErrAccountNotFound
		}
		return &models.InsufficientBalanceError{Required: amount, Available: user.Balance}
	}

	return nil
}

// Refund atomically credits an account, reversing a prior debit of the same
// amount.
func (r *UserRepository) Refund(ctx context.Context, id string, amount float64) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrAccountNotFound
	}

	update := bson.M{
		"$inc": bson.M{"balance": amount, "total_spent": -amount},
		"$set": bson.M{"updated_at": time.Now()},
	}

	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return fmt.Errorf("failed to refund account: %w", err)
	}

	if result.MatchedCount == 0 {
		return models.ErrAccountNotFound
	}

	return nil
}

// ListFilter narrows the admin user listing.
type ListFilter struct {
	Search   string
	IsActive *bool
}

func (r *UserRepository) List(ctx context.Context, filter ListFilter, page, limit int) ([]*models.User, int64, error) {
	query := bson.M{"role": models.RoleUser}

	if filter.Search != "" {
		query["$or"] = []bson.M{
			{"username": bson.M{"$regex": filter.Search, "$options": "i"}},
			{"email": bson.M{"$regex": filter.Search, "$options": "i"}},
		}
	}
	if filter.IsActive != nil {
		query["is_active"] = *filter.IsActive
	}

	total, err := r.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []*models.User
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, 0, fmt.Errorf("failed to decode user: %w", err)
		}
		users = append(users, &user)
	}

	return users, total, nil
}

func (r *UserRepository) Update(ctx context.Context, id string, req *models.UpdateUserRequest) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, models.ErrAccountNotFound
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	update := bson.M{
		"$set": bson.M{
			"username":   req.Username,
			"email":      req.Email,
			"api_key":    req.APIKey,
			"balance":    req.Balance,
			"is_active":  isActive,
			"updated_at": time.Now(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var user models.User
	err = r.collection.FindOneAndUpdate(ctx, bson.M{"_id": objectID}, update, opts).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, models.ErrAccountNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	return &user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return models.ErrAccountNotFound
	}

	result, err := r.collection.DeleteOne(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}

	if result.DeletedCount == 0 {
		return models.ErrAccountNotFound
	}

	return nil
}

func (r *UserRepository) CountByRole(ctx context.Context, role string, isActive *bool) (int64, error) {
	filter := bson.M{"role": role}
	if isActive != nil {
		filter["is_active"] = *isActive
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}

	return count, nil
}
