package ws

import (
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Frame is one data message pre-rendered for both protocols.
type Frame struct {
	JSON     []byte
	Protobuf []byte
}

// Encoder renders group payloads as JSON text frames and as
// Zstd-compressed protobuf Struct frames.
type Encoder struct {
	zstdEncoder *zstd.Encoder
	compress    bool
}

// NewEncoder creates a new Encoder. Without compression the protobuf frame
// is the raw Struct encoding.
func NewEncoder(compress bool) (*Encoder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	return &Encoder{zstdEncoder: enc, compress: compress}, nil
}

type dataMessage struct {
	Type      string      `json:"type"`
	Group     string      `json:"group"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Encode builds the data frame for group at ts.
func (e *Encoder) Encode(group string, ts time.Time, payload any) (Frame, error) {
	// 1. JSON frame
	raw, err := json.Marshal(dataMessage{Type: "message", Group: group, Timestamp: ts, Data: payload})
	if err != nil {
		return Frame{}, fmt.Errorf("marshal %s payload: %w", group, err)
	}

	// 2. Re-read as generic values so structpb can represent it
	var generic map[string]interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Frame{}, fmt.Errorf("decode %s payload: %w", group, err)
	}
	s, err := structpb.NewStruct(generic)
	if err != nil {
		return Frame{}, fmt.Errorf("convert %s payload: %w", group, err)
	}

	// 3. Serialize to protobuf bytes
	pbData, err := proto.Marshal(s)
	if err != nil {
		return Frame{}, fmt.Errorf("marshal protobuf: %w", err)
	}

	// 4. Compress with Zstd
	if e.compress {
		pbData = e.zstdEncoder.EncodeAll(pbData, nil)
	}

	return Frame{JSON: raw, Protobuf: pbData}, nil
}

// Close releases encoder resources.
func (e *Encoder) Close() {
	if e.zstdEncoder != nil {
		e.zstdEncoder.Close()
	}
}
