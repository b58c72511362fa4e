package codec

import (
	"encoding/json"
	"fmt"
)

// Extract1Topic is the topic E1 consumes START_EXTRACT commands from.
const Extract1Topic = "extract.handshake.job.stage1.v1"

const extract1Action = "START_EXTRACT"

// Extract1Cmd tells E1 to fetch a contiguous range of search-result pages.
type Extract1Cmd struct {
	StartPage int
	EndPage   int
	PerPage   int
}

type extract1Wire struct {
	Action string `json:"action"`
	Params struct {
		StartPage int `json:"start_page"`
		EndPage   int `json:"end_page"`
		PerPage   int `json:"per_page"`
	} `json:"params"`
}

// Extract1Codec implements Codec[Extract1Cmd].
type Extract1Codec struct{}

func (Extract1Codec) Topic() string { return Extract1Topic }

func (Extract1Codec) Serialize(msg Extract1Cmd) ([]byte, error) {
	var w extract1Wire
	w.Action = extract1Action
	w.Params.StartPage = msg.StartPage
	w.Params.EndPage = msg.EndPage
	w.Params.PerPage = msg.PerPage
	return json.Marshal(w)
}

func (Extract1Codec) Deserialize(data []byte) (Extract1Cmd, error) {
	var w extract1Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Extract1Cmd{}, fmt.Errorf("codec: decode extract1: %w", err)
	}
	if w.Action != extract1Action {
		return Extract1Cmd{}, &DeadLetterError{Topic: Extract1Topic, Action: w.Action}
	}
	return Extract1Cmd{
		StartPage: w.Params.StartPage,
		EndPage:   w.Params.EndPage,
		PerPage:   w.Params.PerPage,
	}, nil
}
