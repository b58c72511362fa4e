package codec

import (
	"encoding/json"
	"fmt"
	"time"
)

// Transform2Topic is the topic T2 consumes raw detail-page HTML from.
const Transform2Topic = "raw.handshake.job.stage2.v1"

const transform2Action = "START_TRANSFORM"

// Transform2Cmd carries one job's detail-page HTML for T2 to parse.
type Transform2Cmd struct {
	URL       string
	HTML      string
	CreatedAt time.Time
}

type transform2Wire struct {
	Action string `json:"action"`
	Params struct {
		Codec     string `json:"codec"`
		CreatedAt string `json:"created_at"`
		URL       string `json:"url"`
		B64       string `json:"b64"`
	} `json:"params"`
}

// Transform2Codec implements Codec[Transform2Cmd].
type Transform2Codec struct{}

func (Transform2Codec) Topic() string { return Transform2Topic }

func (Transform2Codec) Serialize(msg Transform2Cmd) ([]byte, error) {
	b64, err := compressB64(msg.HTML)
	if err != nil {
		return nil, err
	}
	var w transform2Wire
	w.Action = transform2Action
	w.Params.Codec = "zlib"
	w.Params.CreatedAt = msg.CreatedAt.UTC().Format(time.RFC3339Nano)
	w.Params.URL = msg.URL
	w.Params.B64 = b64
	return json.Marshal(w)
}

func (Transform2Codec) Deserialize(data []byte) (Transform2Cmd, error) {
	var w transform2Wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Transform2Cmd{}, fmt.Errorf("codec: decode transform2: %w", err)
	}
	if w.Action != transform2Action {
		return Transform2Cmd{}, &DeadLetterError{Topic: Transform2Topic, Action: w.Action}
	}
	html, err := decompressB64(w.Params.B64)
	if err != nil {
		return Transform2Cmd{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, w.Params.CreatedAt)
	if err != nil {
		return Transform2Cmd{}, fmt.Errorf("codec: decode transform2 created_at: %w", err)
	}
	return Transform2Cmd{URL: w.Params.URL, HTML: html, CreatedAt: createdAt}, nil
}
