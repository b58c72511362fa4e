package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jerling2/handshake-pipeline/internal/compress"
)

// rawStage1Document is the on-disk shape of one compressed listing-page
// fetch, field-for-field from HandshakeRepoE1Model.make_document.
type rawStage1Document struct {
	Source    string    `bson:"source"`
	CreatedAt time.Time `bson:"created_at"`
	URL       string    `bson:"url"`
	Codec     string    `bson:"codec"`
	Payload   []byte    `bson:"payload"`
}

// RawStage1Repo stores E1's raw HTML fetches, zlib-compressed, one document
// per successfully fetched listing page. Grounded on
// original_source/source/database/data_lake/repos/handshake_repo_e1.py.
type RawStage1Repo struct {
	Collection collection
	Clock      func() time.Time
}

// Insert zlib-compresses html and stores it keyed by url.
func (r *RawStage1Repo) Insert(ctx context.Context, url, html string) error {
	payload, err := compress.Zlib(html)
	if err != nil {
		return fmt.Errorf("repository: compress raw listing page: %w", err)
	}
	doc := rawStage1Document{
		Source:    "handshake",
		CreatedAt: r.now(),
		URL:       url,
		Codec:     "zlib",
		Payload:   payload,
	}
	if _, err := r.Collection.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("repository: insert raw listing page: %w", err)
	}
	return nil
}

func (r *RawStage1Repo) now() time.Time {
	if r.Clock != nil {
		return r.Clock()
	}
	return time.Now()
}
