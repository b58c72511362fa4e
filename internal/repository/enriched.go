package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jerling2/handshake-pipeline/internal/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrInvalidEnrichedJob is returned by EnrichedRepo.Upsert when job fails
// the shape validation the original enforced with a pydantic TypeAdapter.
var ErrInvalidEnrichedJob = errors.New("repository: invalid enriched job")

// EnrichedRepo is the enriched-job collection T2 upserts into, keyed by
// URL. Grounded on handshake_lake.py's upsert_enriched_job_data.
type EnrichedRepo struct {
	Collection collection
}

// Upsert validates job's shape, then $set-upserts it by URL.
func (r *EnrichedRepo) Upsert(ctx context.Context, job models.EnrichedJob) error {
	if err := validateEnrichedJob(job); err != nil {
		return err
	}
	doc := bson.M{
		"about":           job.About,
		"apply_by":        job.ApplyBy,
		"apply_type":      job.ApplyType,
		"company":         job.Company,
		"documents":       job.Documents,
		"employment_type": job.EmploymentType,
		"industry":        job.Industry,
		"job_type":        job.JobType,
		"location":        job.Location,
		"location_type":   job.LocationType,
		"position":        job.Position,
		"posted_at":       job.PostedAt,
		"url":             job.URL,
	}
	if job.Wage != nil {
		doc["wage"] = []int{job.Wage[0], job.Wage[1]}
	} else {
		doc["wage"] = nil
	}
	_, err := r.Collection.UpdateOne(
		ctx,
		bson.M{"url": job.URL},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("repository: upsert enriched job %q: %w", job.URL, err)
	}
	return nil
}

func validateEnrichedJob(job models.EnrichedJob) error {
	if job.URL == "" {
		return fmt.Errorf("%w: url is required", ErrInvalidEnrichedJob)
	}
	if job.Wage != nil && job.Wage[0] > job.Wage[1] {
		return fmt.Errorf("%w: wage min must not exceed max", ErrInvalidEnrichedJob)
	}
	return nil
}
