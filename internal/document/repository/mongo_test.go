package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/database"
	"github.com/pdfshare/pdfshare/backend/go-services/internal/document"
	"github.com/stretchr/testify/require"
)

// Runs against a real server only when MONGODB_TEST_URI is set.
func TestMongoRepoShareTokens(t *testing.T) {
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx := context.Background()
	client, err := database.ConnectMongo(ctx, uri, 5*time.Second)
	require.NoError(t, err)
	defer func() { _ = client.Disconnect(ctx) }()

	db := client.Database("pdfshare_test_" + uuid.NewString()[:8])
	defer func() { _ = db.Drop(ctx) }()

	r, err := NewMongoRepo(ctx, db)
	require.NoError(t, err)

	id, err := r.Create(ctx, &document.Document{OwnerID: "u1", Title: "Doc"})
	require.NoError(t, err)

	t0 := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, r.AddShareToken(ctx, id, "tok-a", document.ShareGrant{CreatedAt: t0}))
	require.ErrorIs(t, r.AddShareToken(ctx, id, "tok-a", document.ShareGrant{CreatedAt: t0}), ErrDuplicateToken)
	require.ErrorIs(t, r.AddShareToken(ctx, "missing", "tok-b", document.ShareGrant{CreatedAt: t0}), ErrNotFound)

	// rollback freed the token for reuse
	require.NoError(t, r.AddShareToken(ctx, id, "tok-b", document.ShareGrant{CreatedAt: t0}))

	d, err := r.FindByToken(ctx, "tok-a")
	require.NoError(t, err)
	require.Equal(t, id, d.ID)
	require.True(t, d.ShareTokens["tok-a"].CreatedAt.Equal(t0))

	require.NoError(t, r.RemoveShareTokens(ctx, id, []string{"tok-a"}))
	_, err = r.FindByToken(ctx, "tok-a")
	require.ErrorIs(t, err, document.ErrTokenNotFound)
}
