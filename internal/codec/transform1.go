package codec

import (
	"encoding/json"
	"fmt"
)

// Transform1Topic is the topic T1 consumes raw listing HTML from.
const Transform1Topic = "raw.handshake.job.stage1.v1"

const transform1Action = "START_TRANSFORM"

// Transform1Cmd carries one listing page's HTML for T1 to parse.
type Transform1Cmd struct {
	HTML string
}

type transform1Wire struct {
	Action string `json:"action"`
	Params struct {
		Codec string `json:"codec"`
		B64   string `json:"b64"`
	} `json:"params"`
}

// Transform1Codec implements Codec[Transform1Cmd].
type Transform1Codec struct{}

func (Transform1Codec) Topic() string { return Transform1Topic }

func (Transform1Codec) Serialize(msg Transform1Cmd) ([]byte, error) {
	b64, err := compressB64(msg.HTML)
	if err != nil {
		return nil, err
	}
	var w transform1Wire
	w.Action = transform1Action
	w.Params.Codec = "zlib"
	w.Params.B64 = b64
	return json.Marshal(w)
}

func (Transform1Codec) Deserialize(data []byte) (Transform1Cmd, error) {
	var w transform1Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Transform1Cmd{}, fmt.Errorf("codec: decode transform1: %w", err)
	}
	if w.Action != transform1Action {
		return Transform1Cmd{}, &DeadLetterError{Topic: Transform1Topic, Action: w.Action}
	}
	html, err := decompressB64(w.Params.B64)
	if err != nil {
		return Transform1Cmd{}, err
	}
	return Transform1Cmd{HTML: html}, nil
}
