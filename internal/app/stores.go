package app

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/comments"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/config"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/database"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document/repository"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/users"
	"github.com/pdfshare/pdfshare/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/mongo"
)

const usersCollection = "users"

// Stores groups the persistent state of the service. Without MONGODB_URI
// everything lives in process memory.
type Stores struct {
	Documents repository.Repository
	Comments  comments.Store
	Users     users.UserRepository
	mongo     *mongo.Client
}

// OpenStores connects to MongoDB when configured, otherwise returns memory stores.
func OpenStores(ctx context.Context, cfg *config.Config, clk clock.Clock) (*Stores, error) {
	if cfg.MongoDB.URI == "" {
		return &Stores{
			Documents: repository.NewMemoryRepo(),
			Comments:  comments.NewMemoryStore(clk),
			Users:     users.NewMemoryUserRepository(),
		}, nil
	}

	client, err := database.ConnectMongoWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.Attempts)
	if err != nil {
		return nil, err
	}
	s := &Stores{mongo: client}
	db := client.Database(cfg.MongoDB.Database)
	if s.Documents, err = repository.NewMongoRepo(ctx, db); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	if s.Comments, err = comments.NewMongoStore(ctx, db); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	if s.Users, err = users.NewMongoUserRepository(ctx, db.Collection(usersCollection)); err != nil {
		_ = s.Close(ctx)
		return nil, err
	}
	logger.Infof("connected to MongoDB database %q", cfg.MongoDB.Database)
	return s, nil
}

// Persistent reports whether the stores are backed by MongoDB.
func (s *Stores) Persistent() bool { return s.mongo != nil }

func (s *Stores) Ping(ctx context.Context) error {
	if s.mongo == nil {
		return nil
	}
	return s.mongo.Ping(ctx, nil)
}

func (s *Stores) Close(ctx context.Context) error {
	if s.mongo == nil {
		return nil
	}
	if err := s.mongo.Disconnect(ctx); err != nil {
		return fmt.Errorf("mongo disconnect: %w", err)
	}
	return nil
}
