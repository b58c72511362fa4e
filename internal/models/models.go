// Package models holds the domain types shared between codecs, repositories
// and stage workers, independent of wire format or storage engine.
package models

import "time"

// RawStage1Document is the raw.stage1 document store entity: one compressed
// listing-page fetch.
type RawStage1Document struct {
	Source    string
	CreatedAt time.Time
	URL       string
	Codec     string // always "zlib"
	Payload   []byte
}

// JobPosting is the job-postings document store entity, keyed by JobID.
type JobPosting struct {
	CreatedAt time.Time
	JobID     int
	Role      string
	URL       string
	E2Success *bool
}

// EnrichedJob is the enriched-job document store entity, keyed by URL.
type EnrichedJob struct {
	About          *string
	ApplyBy        *time.Time
	ApplyType      *string
	Company        *string
	Documents      []string
	EmploymentType *string
	Industry       *string
	JobType        *string
	Location       *string
	LocationType   []string
	Position       *string
	PostedAt       *time.Time
	URL            string
	Wage           *[2]int
}

// FetchedPage is the result of fetching one URL: the black-box
// "fetch(url) -> html" collaborator's success case.
type FetchedPage struct {
	URL    string
	HTML   string
	Status int
}

// StageError wraps a failure with the URL and stage it occurred in, so
// structured logs can carry both uniformly.
type StageError struct {
	Stage string
	URL   string
	Err   error
}

func (e *StageError) Error() string {
	if e.URL != "" {
		return e.Stage + ": " + e.URL + ": " + e.Err.Error()
	}
	return e.Stage + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error { return e.Err }
