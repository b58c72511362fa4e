package codec

import (
	"encoding/json"
	"fmt"
	"time"
)

// Load1Topic is the topic T2 publishes enriched records to.
const Load1Topic = "load.handshake.job.v1"

const load1Action = "START_LOAD"

// Load1Record is the canonical enriched job record.
type Load1Record struct {
	About          *string
	ApplyBy        *time.Time
	ApplyType      *string // "internal" | "external" | nil
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

type load1Wire struct {
	Topic          string    `json:"topic"`
	Action         string    `json:"action"`
	AboutCodec     *string   `json:"about_codec"`
	About          *string   `json:"about"`
	ApplyBy        *string   `json:"apply_by"`
	ApplyType      *string   `json:"apply_type"`
	Company        *string   `json:"company"`
	Documents      []string  `json:"documents"`
	EmploymentType *string   `json:"employment_type"`
	Industry       *string   `json:"industry"`
	JobType        *string   `json:"job_type"`
	Location       *string   `json:"location"`
	LocationType   []string  `json:"location_type"`
	Position       *string   `json:"position"`
	PostedAt       *string   `json:"posted_at"`
	URL            string    `json:"url"`
	Wage           *[2]int   `json:"wage"`
}

// Load1Codec implements Codec[Load1Record].
type Load1Codec struct{}

func (Load1Codec) Topic() string { return Load1Topic }

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339Nano)
	return &s
}

func parseTimePtr(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (Load1Codec) Serialize(msg Load1Record) ([]byte, error) {
	w := load1Wire{
		Topic:          Load1Topic,
		Action:         load1Action,
		ApplyType:      msg.ApplyType,
		Company:        msg.Company,
		Documents:      msg.Documents,
		EmploymentType: msg.EmploymentType,
		Industry:       msg.Industry,
		JobType:        msg.JobType,
		Location:       msg.Location,
		LocationType:   msg.LocationType,
		Position:       msg.Position,
		URL:            msg.URL,
		Wage:           msg.Wage,
	}
	if w.Documents == nil {
		w.Documents = []string{}
	}
	if w.LocationType == nil {
		w.LocationType = []string{}
	}
	w.ApplyBy = formatTimePtr(msg.ApplyBy)
	w.PostedAt = formatTimePtr(msg.PostedAt)
	if msg.About != nil {
		b64, err := compressB64(*msg.About)
		if err != nil {
			return nil, err
		}
		zlib := "zlib"
		w.AboutCodec = &zlib
		w.About = &b64
	}
	return json.Marshal(w)
}

func (Load1Codec) Deserialize(data []byte) (Load1Record, error) {
	var w load1Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Load1Record{}, fmt.Errorf("codec: decode load1: %w", err)
	}
	if w.Action != load1Action {
		return Load1Record{}, &DeadLetterError{Topic: Load1Topic, Action: w.Action}
	}
	out := Load1Record{
		ApplyType:      w.ApplyType,
		Company:        w.Company,
		Documents:      w.Documents,
		EmploymentType: w.EmploymentType,
		Industry:       w.Industry,
		JobType:        w.JobType,
		Location:       w.Location,
		LocationType:   w.LocationType,
		Position:       w.Position,
		URL:            w.URL,
		Wage:           w.Wage,
	}
	var err error
	if out.ApplyBy, err = parseTimePtr(w.ApplyBy); err != nil {
		return Load1Record{}, fmt.Errorf("codec: decode load1 apply_by: %w", err)
	}
	if out.PostedAt, err = parseTimePtr(w.PostedAt); err != nil {
		return Load1Record{}, fmt.Errorf("codec: decode load1 posted_at: %w", err)
	}
	if w.About != nil {
		about, err := decompressB64(*w.About)
		if err != nil {
			return Load1Record{}, err
		}
		out.About = &about
	}
	return out, nil
}
