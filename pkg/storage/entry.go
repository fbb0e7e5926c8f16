package storage

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/ksuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrCorruptEntry is wrapped by errors decoding a stored entry
var ErrCorruptEntry = errors.New("storage: corrupt entry")

const (
	entryFieldID         protowire.Number = 1
	entryFieldTopic      protowire.Number = 2
	entryFieldPayload    protowire.Number = 3
	entryFieldReceivedAt protowire.Number = 4
)

// Entry is one received message
type Entry struct {
	ID         ksuid.KSUID
	Topic      string
	Payload    []byte
	ReceivedAt time.Time
}

// encodeEntry serializes e as a protobuf-compatible message
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 0, 64+len(e.Topic)+len(e.Payload))
	buf = protowire.AppendTag(buf, entryFieldID, protowire.BytesType)
	buf = protowire.AppendBytes(buf, e.ID.Bytes())
	buf = protowire.AppendTag(buf, entryFieldTopic, protowire.BytesType)
	buf = protowire.AppendString(buf, e.Topic)
	buf = protowire.AppendTag(buf, entryFieldPayload, protowire.BytesType)
	buf = protowire.AppendBytes(buf, e.Payload)
	buf = protowire.AppendTag(buf, entryFieldReceivedAt, protowire.Fixed64Type)
	buf = protowire.AppendFixed64(buf, uint64(e.ReceivedAt.UnixNano()))
	return buf
}

// decodeEntry parses an entry. The result does not alias data.
func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Entry{}, errors.Wrapf(ErrCorruptEntry, "tag: %v", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case typ == protowire.BytesType && num <= entryFieldPayload:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Entry{}, errors.Wrapf(ErrCorruptEntry, "field %d: %v", num, protowire.ParseError(n))
			}
			switch num {
			case entryFieldID:
				id, err := ksuid.FromBytes(v)
				if err != nil {
					return Entry{}, errors.Wrapf(ErrCorruptEntry, "id: %v", err)
				}
				e.ID = id
			case entryFieldTopic:
				e.Topic = string(v)
			case entryFieldPayload:
				e.Payload = append([]byte(nil), v...)
			}
			data = data[n:]
		case num == entryFieldReceivedAt && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return Entry{}, errors.Wrapf(ErrCorruptEntry, "received_at: %v", protowire.ParseError(n))
			}
			e.ReceivedAt = time.Unix(0, int64(v))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Entry{}, errors.Wrapf(ErrCorruptEntry, "field %d: %v", num, protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return e, nil
}

// idSource hands out strictly increasing KSUIDs so keys sort in arrival
// order even within the one-second resolution of the KSUID timestamp.
type idSource struct {
	mu   sync.Mutex
	last ksuid.KSUID
}

func (s *idSource) next(t time.Time) (ksuid.KSUID, error) {
	id, err := ksuid.NewRandomWithTime(t)
	if err != nil {
		return ksuid.Nil, errors.Wrap(err, "generate id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ksuid.Compare(id, s.last) <= 0 {
		id = s.last.Next()
	}
	s.last = id
	return id, nil
}

// observe makes later ids sort after id
func (s *idSource) observe(id ksuid.KSUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ksuid.Compare(id, s.last) > 0 {
		s.last = id
	}
}
