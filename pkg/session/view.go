package session

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/ssargent/protodemo/pkg/broker"
	"github.com/ssargent/protodemo/pkg/codec"
)

// View is what a display shows: the connection state and the last message
// received on the topic.
type View struct {
	State       broker.ConnectionState `json:"state"`
	Topic       string                 `json:"topic"`
	Received    uint64                 `json:"received"`
	LastRaw     string                 `json:"last_raw,omitempty"`
	LastHex     string                 `json:"last_hex,omitempty"`
	Decoded     *codec.SimpleRequest   `json:"decoded,omitempty"`
	DecodedJSON string                 `json:"decoded_json,omitempty"`
	DecodeError string                 `json:"decode_error,omitempty"`
	ReceivedAt  *time.Time             `json:"received_at,omitempty"`
}

func (v View) clone() View {
	if v.Decoded != nil {
		d := *v.Decoded
		v.Decoded = &d
	}
	if v.ReceivedAt != nil {
		t := *v.ReceivedAt
		v.ReceivedAt = &t
	}
	return v
}

// HistoryItem is a stored message with its decoded form
type HistoryItem struct {
	ID          string               `json:"id"`
	Topic       string               `json:"topic"`
	ReceivedAt  time.Time            `json:"received_at"`
	Hex         string               `json:"hex"`
	Decoded     *codec.SimpleRequest `json:"decoded,omitempty"`
	DecodeError string               `json:"decode_error,omitempty"`
}

// RawString renders a message as "topic: b0,b1,..." with decimal bytes.
func RawString(topic string, payload []byte) string {
	var b strings.Builder
	b.Grow(len(topic) + 2 + len(payload)*4)
	b.WriteString(topic)
	b.WriteString(": ")
	for i, c := range payload {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.Itoa(int(c)))
	}
	return b.String()
}

// HexString renders payload as lowercase hex without separators
func HexString(payload []byte) string {
	return hex.EncodeToString(payload)
}
