package comments

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const commentsCollection = "comments"

// MongoStore keeps every document's feed in one "comments" collection.
// PostedAt comes from the server ($$NOW), never from the writer's clock.
type MongoStore struct {
	col *mongo.Collection
}

func NewMongoStore(ctx context.Context, db *mongo.Database) (*MongoStore, error) {
	col := db.Collection(commentsCollection)
	idx := mongo.IndexModel{Keys: bson.D{{Key: "documentId", Value: 1}, {Key: "postedAt", Value: -1}, {Key: "_id", Value: -1}}}
	if _, err := col.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, fmt.Errorf("create comments index: %w", err)
	}
	return &MongoStore{col: col}, nil
}

// Append upserts the new comment through an update pipeline so $$NOW is
// evaluated by the server. User text goes through $literal so a leading '$'
// is not read as a field path.
func (s *MongoStore) Append(ctx context.Context, c Comment) (Comment, error) {
	set := bson.D{
		{Key: "documentId", Value: bson.M{"$literal": c.DocumentID}},
		{Key: "text", Value: bson.M{"$literal": c.Text}},
		{Key: "authorLabel", Value: bson.M{"$literal": c.AuthorLabel}},
		{Key: "authorKind", Value: bson.M{"$literal": string(c.AuthorKind)}},
		{Key: "postedAt", Value: "$$NOW"},
	}
	if c.AuthorID != "" {
		set = append(set, bson.E{Key: "authorId", Value: bson.M{"$literal": c.AuthorID}})
	}
	pipeline := mongo.Pipeline{{{Key: "$set", Value: set}}}
	if _, err := s.col.UpdateOne(ctx, bson.M{"_id": c.ID}, pipeline, options.Update().SetUpsert(true)); err != nil {
		return Comment{}, fmt.Errorf("insert comment: %w", err)
	}
	var saved Comment
	if err := s.col.FindOne(ctx, bson.M{"_id": c.ID}).Decode(&saved); err != nil {
		return Comment{}, fmt.Errorf("read back comment: %w", err)
	}
	saved.PostedAt = saved.PostedAt.UTC()
	return saved, nil
}

func (s *MongoStore) List(ctx context.Context, documentID string) ([]Comment, error) {
	opts := options.Find().SetSort(bson.D{{Key: "postedAt", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.col.Find(ctx, bson.M{"documentId": documentID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer cur.Close(ctx)
	feed := []Comment{}
	if err := cur.All(ctx, &feed); err != nil {
		return nil, err
	}
	if feed == nil {
		feed = []Comment{}
	}
	for i := range feed {
		feed[i].PostedAt = feed[i].PostedAt.UTC()
	}
	return feed, nil
}
