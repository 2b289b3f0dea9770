package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/noah-isme/tutorhub-api/internal/models"
)

const contactCollection = "contact_messages"

// ContactRepository stores contact-form inquiries in MongoDB.
type ContactRepository struct {
	coll *mongo.Collection
}

// NewContactRepository constructs a ContactRepository on db.
func NewContactRepository(db *mongo.Database) *ContactRepository {
	return &ContactRepository{coll: db.Collection(contactCollection)}
}

// EnsureIndexes creates the listing index. Safe to call at every start.
func (r *ContactRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "handled", Value: 1}, {Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create contact index: %w", err)
	}
	return nil
}

// Create inserts msg and fills its ID.
func (r *ContactRepository) Create(ctx context.Context, msg *models.ContactMessage) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	res, err := r.coll.InsertOne(ctx, msg)
	if err != nil {
		return fmt.Errorf("insert contact message: %w", err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		msg.ID = id
	}
	return nil
}

// List returns messages newest first with the total count.
func (r *ContactRepository) List(ctx context.Context, filter models.ContactFilter) ([]models.ContactMessage, int, error) {
	query := bson.M{}
	if filter.Handled != nil {
		query["handled"] = *filter.Handled
	}
	_, size, offset := models.NormalizePage(filter.Page, filter.PageSize)
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(size))

	cursor, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find contact messages: %w", err)
	}
	defer cursor.Close(ctx) //nolint:errcheck

	messages := []models.ContactMessage{}
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, 0, fmt.Errorf("decode contact messages: %w", err)
	}
	total, err := r.coll.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("count contact messages: %w", err)
	}
	return messages, int(total), nil
}

// MarkHandled flags a message as handled. sql.ErrNoRows is returned for unknown or
// malformed ids so the service maps it like any other missing record.
func (r *ContactRepository) MarkHandled(ctx context.Context, id string) (*models.ContactMessage, error) {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, sql.ErrNoRows
	}
	now := time.Now().UTC()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var msg models.ContactMessage
	err = r.coll.FindOneAndUpdate(ctx, bson.M{"_id": objID}, bson.M{"$set": bson.M{"handled": true, "handled_at": now}}, opts).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("mark contact handled: %w", err)
	}
	return &msg, nil
}
