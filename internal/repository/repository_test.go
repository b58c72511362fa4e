package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/compress"
	"github.com/jerling2/handshake-pipeline/internal/models"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// fakeCollection is an in-memory stand-in for *mongo.Collection, enough of
// the surface for these repositories to exercise without a live broker.
type fakeCollection struct {
	inserted     []any
	insertErr    error
	updates      []fakeUpdate
	updateErr    error
	bulkWriteErr error
	upsertedIDs  map[int64]any
}

type fakeUpdate struct {
	filter, update any
}

func (f *fakeCollection) InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error) {
	if f.insertErr != nil {
		return nil, f.insertErr
	}
	f.inserted = append(f.inserted, document)
	return &mongo.InsertOneResult{}, nil
}

func (f *fakeCollection) UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOneOptions) (*mongo.UpdateResult, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	f.updates = append(f.updates, fakeUpdate{filter: filter, update: update})
	return &mongo.UpdateResult{}, nil
}

func (f *fakeCollection) BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error) {
	if f.bulkWriteErr != nil {
		return nil, f.bulkWriteErr
	}
	return &mongo.BulkWriteResult{UpsertedIDs: f.upsertedIDs}, nil
}

func TestRawStage1RepoInsertCompressesPayload(t *testing.T) {
	fc := &fakeCollection{}
	repo := &RawStage1Repo{Collection: fc, Clock: func() time.Time { return time.Unix(0, 0) }}

	require.NoError(t, repo.Insert(context.Background(), "https://a.test/1", "<html>hi</html>"))
	require.Len(t, fc.inserted, 1)

	doc := fc.inserted[0].(rawStage1Document)
	require.Equal(t, "handshake", doc.Source)
	require.Equal(t, "zlib", doc.Codec)
	require.Equal(t, "https://a.test/1", doc.URL)

	out, err := compress.Unzlib(doc.Payload)
	require.NoError(t, err)
	require.Equal(t, "<html>hi</html>", out)
}

func TestRawStage1RepoInsertPropagatesError(t *testing.T) {
	fc := &fakeCollection{insertErr: errors.New("boom")}
	repo := &RawStage1Repo{Collection: fc}
	err := repo.Insert(context.Background(), "u", "h")
	require.Error(t, err)
}

func TestPostingsRepoUpsertManyReturnsNewIndices(t *testing.T) {
	fc := &fakeCollection{upsertedIDs: map[int64]any{0: "id0", 2: "id2"}}
	repo := &PostingsRepo{Collection: fc}

	postings := []models.JobPosting{
		{JobID: 1, Role: "Engineer", URL: "https://a.test/1"},
		{JobID: 2, Role: "Analyst", URL: "https://a.test/2"},
		{JobID: 3, Role: "Intern", URL: "https://a.test/3"},
	}
	indices, err := repo.UpsertMany(context.Background(), postings)
	require.NoError(t, err)
	require.Equal(t, []int{0, 2}, indices)
}

func TestPostingsRepoUpsertManyEmptyIsNoop(t *testing.T) {
	fc := &fakeCollection{}
	repo := &PostingsRepo{Collection: fc}
	indices, err := repo.UpsertMany(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, indices)
}

func TestPostingsRepoUpsertManyPropagatesError(t *testing.T) {
	fc := &fakeCollection{bulkWriteErr: errors.New("boom")}
	repo := &PostingsRepo{Collection: fc}
	_, err := repo.UpsertMany(context.Background(), []models.JobPosting{{JobID: 1}})
	require.Error(t, err)
}

func TestPostingsRepoSetE2Success(t *testing.T) {
	fc := &fakeCollection{}
	repo := &PostingsRepo{Collection: fc}
	require.NoError(t, repo.SetE2Success(context.Background(), "https://a.test/1", true))
	require.Len(t, fc.updates, 1)
}

func TestEnrichedRepoUpsertRejectsMissingURL(t *testing.T) {
	fc := &fakeCollection{}
	repo := &EnrichedRepo{Collection: fc}
	err := repo.Upsert(context.Background(), models.EnrichedJob{})
	require.ErrorIs(t, err, ErrInvalidEnrichedJob)
}

func TestEnrichedRepoUpsertRejectsInvalidWage(t *testing.T) {
	fc := &fakeCollection{}
	repo := &EnrichedRepo{Collection: fc}
	err := repo.Upsert(context.Background(), models.EnrichedJob{URL: "https://a.test/1", Wage: &[2]int{100, 50}})
	require.ErrorIs(t, err, ErrInvalidEnrichedJob)
}

func TestEnrichedRepoUpsertSucceeds(t *testing.T) {
	fc := &fakeCollection{}
	repo := &EnrichedRepo{Collection: fc}
	err := repo.Upsert(context.Background(), models.EnrichedJob{URL: "https://a.test/1", Wage: &[2]int{50, 100}})
	require.NoError(t, err)
	require.Len(t, fc.updates, 1)
}
