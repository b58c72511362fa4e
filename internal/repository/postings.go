package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// PostingsRepo is the job-postings collection: one document per job_id,
// upserted by T1 and updated with e2_success by E2. Grounded on
// original_source/source/database/data_lake/lakes/handshake_lake.py's
// upsert_job_postings/set_e2_success.
type PostingsRepo struct {
	Collection collection
	Clock      func() time.Time
}

// UpsertMany bulk-upserts postings keyed by JobID and returns the indices
// (into postings, in call order) of entries that were newly inserted rather
// than matched against an existing document. Stage T1 uses this to emit
// E2-cmd only for postings the pipeline has not already queued for detail
// extraction — see DESIGN.md's Open Question decision on T1 idempotence.
//
// Unlike the original, a bulk-write error is returned rather than logged
// and swallowed into an empty result: a caller that treats "no error, zero
// new postings" as success would otherwise silently stop discovering new
// jobs on every transient Mongo error.
func (r *PostingsRepo) UpsertMany(ctx context.Context, postings []models.JobPosting) ([]int, error) {
	if len(postings) == 0 {
		return nil, nil
	}
	ops := make([]mongo.WriteModel, 0, len(postings))
	for _, p := range postings {
		op := mongo.NewUpdateOneModel().
			SetFilter(bson.M{"job_id": p.JobID}).
			SetUpdate(bson.M{
				"$setOnInsert": bson.M{"created_at": r.now(), "job_id": p.JobID},
				"$set":         bson.M{"role": p.Role, "url": p.URL},
			}).
			SetUpsert(true)
		ops = append(ops, op)
	}
	res, err := r.Collection.BulkWrite(ctx, ops, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return nil, fmt.Errorf("repository: bulk upsert job postings: %w", err)
	}
	indices := make([]int, 0, len(res.UpsertedIDs))
	for idx := range res.UpsertedIDs {
		indices = append(indices, int(idx))
	}
	sort.Ints(indices)
	return indices, nil
}

// SetE2Success records whether E2's detail fetch for url succeeded.
func (r *PostingsRepo) SetE2Success(ctx context.Context, url string, success bool) error {
	_, err := r.Collection.UpdateOne(
		ctx,
		bson.M{"url": url},
		bson.M{"$set": bson.M{"url": url, "e2_success": success}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("repository: set e2_success for %q: %w", url, err)
	}
	return nil
}

func (r *PostingsRepo) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}
