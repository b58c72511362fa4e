// Package repository implements the document-store side of the pipeline:
// raw listing-page storage, the job-postings collection T1/E2 drive through
// their state machine, and the enriched-job collection T2 writes into.
// Grounded on original_source/source/database/data_lake.
package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// collection is the narrow slice of *mongo.Collection each repository
// needs, so tests can substitute an in-memory fake instead of a live
// broker-and-database pair.
type collection interface {
	InsertOne(ctx context.Context, document any, opts ...*options.InsertOneOptions) (*mongo.InsertOneResult, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...*options.UpdateOneOptions) (*mongo.UpdateResult, error)
	BulkWrite(ctx context.Context, models []mongo.WriteModel, opts ...*options.BulkWriteOptions) (*mongo.BulkWriteResult, error)
}

// Database is the minimal handle repositories need from a live Mongo
// connection: one collection per document store.
type Database interface {
	Collection(name string) *mongo.Collection
}

// mongoDatabase adapts *mongo.Database to Database.
type mongoDatabase struct{ db *mongo.Database }

// NewDatabase wraps a connected *mongo.Database for repository construction.
func NewDatabase(db *mongo.Database) Database { return mongoDatabase{db: db} }

func (m mongoDatabase) Collection(name string) *mongo.Collection { return m.db.Collection(name) }
