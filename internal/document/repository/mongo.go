package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	documentsCollection = "documents"
	tokensCollection    = "share_tokens"
)

// MongoRepo stores documents in "documents" and the token index in
// "share_tokens" (one row per token, keyed by the token itself so the
// primary key enforces global uniqueness).
type MongoRepo struct {
	docs   *mongo.Collection
	tokens *mongo.Collection
}

func NewMongoRepo(ctx context.Context, db *mongo.Database) (*MongoRepo, error) {
	r := &MongoRepo{docs: db.Collection(documentsCollection), tokens: db.Collection(tokensCollection)}
	if _, err := r.docs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "createdAt", Value: -1}},
	}); err != nil {
		return nil, fmt.Errorf("create documents index: %w", err)
	}
	if _, err := r.tokens.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: 1}},
	}); err != nil {
		return nil, fmt.Errorf("create share_tokens index: %w", err)
	}
	return r, nil
}

func (m *MongoRepo) Create(ctx context.Context, doc *document.Document) (string, error) {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	doc.UpdatedAt = doc.CreatedAt
	if _, err := m.docs.InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("insert document: %w", err)
	}
	return doc.ID, nil
}

func (m *MongoRepo) Get(ctx context.Context, id string) (*document.Document, error) {
	var d document.Document
	if err := m.docs.FindOne(ctx, bson.M{"_id": id}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return &d, nil
}

func (m *MongoRepo) ListByOwner(ctx context.Context, ownerID string) ([]*document.Document, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cur, err := m.docs.Find(ctx, bson.M{"ownerId": ownerID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer cur.Close(ctx)
	out := []*document.Document{}
	for cur.Next(ctx) {
		var d document.Document
		if err := cur.Decode(&d); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, cur.Err()
}

// AddShareToken claims the token in the index first; if the document update
// then matches nothing the index row is rolled back.
func (m *MongoRepo) AddShareToken(ctx context.Context, documentID, token string, grant document.ShareGrant) error {
	entry := TokenEntry{Token: token, DocumentID: documentID, CreatedAt: grant.CreatedAt}
	if _, err := m.tokens.InsertOne(ctx, entry); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrDuplicateToken
		}
		return fmt.Errorf("index share token: %w", err)
	}
	res, err := m.docs.UpdateOne(ctx,
		bson.M{"_id": documentID},
		bson.M{"$set": bson.M{"shareTokens." + token: grant}},
	)
	if err == nil && res.MatchedCount == 0 {
		err = ErrNotFound
	}
	if err != nil {
		if _, derr := m.tokens.DeleteOne(ctx, bson.M{"_id": token}); derr != nil {
			return fmt.Errorf("rollback share token index: %v (after %w)", derr, err)
		}
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("store share token: %w", err)
	}
	return nil
}

func (m *MongoRepo) FindByToken(ctx context.Context, token string) (*document.Document, error) {
	var e TokenEntry
	if err := m.tokens.FindOne(ctx, bson.M{"_id": token}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, document.ErrTokenNotFound
		}
		return nil, fmt.Errorf("find share token: %w", err)
	}
	d, err := m.Get(ctx, e.DocumentID)
	if errors.Is(err, ErrNotFound) {
		return nil, document.ErrTokenNotFound
	}
	return d, err
}

func (m *MongoRepo) RemoveShareTokens(ctx context.Context, documentID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	unset := bson.M{}
	for _, t := range tokens {
		unset["shareTokens."+t] = ""
	}
	if _, err := m.docs.UpdateOne(ctx, bson.M{"_id": documentID}, bson.M{"$unset": unset}); err != nil {
		return fmt.Errorf("unset share tokens: %w", err)
	}
	if _, err := m.tokens.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": tokens}, "documentId": documentID}); err != nil {
		return fmt.Errorf("delete share token index: %w", err)
	}
	return nil
}

func (m *MongoRepo) TokensCreatedBefore(ctx context.Context, cutoff time.Time) ([]TokenEntry, error) {
	cur, err := m.tokens.Find(ctx, bson.M{"createdAt": bson.M{"$lt": cutoff}})
	if err != nil {
		return nil, fmt.Errorf("list share tokens: %w", err)
	}
	defer cur.Close(ctx)
	out := []TokenEntry{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
