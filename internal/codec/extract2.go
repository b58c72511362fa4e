package codec

import (
	"encoding/json"
	"fmt"
)

// Extract2Topic is the topic E2 consumes START_EXTRACT commands from.
const Extract2Topic = "extract.handshake.job.stage2.v1"

const extract2Action = "START_EXTRACT"

// Extract2Cmd tells E2 to fetch one job's detail page.
type Extract2Cmd struct {
	JobID int
	Role  string
	URL   string
}

type extract2Wire struct {
	Action string `json:"action"`
	Params struct {
		JobID int    `json:"job_id"`
		Role  string `json:"role"`
		URL   string `json:"url"`
	} `json:"params"`
}

// Extract2Codec implements Codec[Extract2Cmd].
type Extract2Codec struct{}

func (Extract2Codec) Topic() string { return Extract2Topic }

func (Extract2Codec) Serialize(msg Extract2Cmd) ([]byte, error) {
	var w extract2Wire
	w.Action = extract2Action
	w.Params.JobID = msg.JobID
	w.Params.Role = msg.Role
	w.Params.URL = msg.URL
	return json.Marshal(w)
}

func (Extract2Codec) Deserialize(data []byte) (Extract2Cmd, error) {
	var w extract2Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Extract2Cmd{}, fmt.Errorf("codec: decode extract2: %w", err)
	}
	if w.Action != extract2Action {
		return Extract2Cmd{}, &DeadLetterError{Topic: Extract2Topic, Action: w.Action}
	}
	return Extract2Cmd{
		JobID: w.Params.JobID,
		Role:  w.Params.Role,
		URL:   w.Params.URL,
	}, nil
}
