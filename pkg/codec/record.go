package codec

import (
	"github.com/cockroachdb/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of SimpleRequest on the wire.
const (
	FieldName protowire.Number = 1
	FieldID   protowire.Number = 2
)

// ErrMalformedInput is wrapped by every error returned by Decode.
var ErrMalformedInput = errors.New("malformed input")

// SimpleRequest is the record published on the demo topic:
//
//	message SimpleRequest { string name = 1; int32 id = 2; }
type SimpleRequest struct {
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
	ID   int32  `json:"id,omitempty" yaml:"id,omitempty"`
}

// Size returns the length of the encoded record in bytes
func (r SimpleRequest) Size() int {
	n := 0
	if r.Name != "" {
		n += protowire.SizeTag(FieldName) + protowire.SizeBytes(len(r.Name))
	}
	if r.ID != 0 {
		n += protowire.SizeTag(FieldID) + protowire.SizeVarint(uint64(int64(r.ID)))
	}
	return n
}

// SimpleRequestCodec handles serialization and deserialization of SimpleRequest records
type SimpleRequestCodec struct{}

// NewSimpleRequestCodec creates a new codec instance
func NewSimpleRequestCodec() *SimpleRequestCodec {
	return &SimpleRequestCodec{}
}

// Encode serializes r. Fields holding their zero value are omitted.
func (c *SimpleRequestCodec) Encode(r SimpleRequest) []byte {
	return c.Append(make([]byte, 0, r.Size()), r)
}

// Append appends the encoding of r to buf and returns the extended buffer
func (c *SimpleRequestCodec) Append(buf []byte, r SimpleRequest) []byte {
	if r.Name != "" {
		buf = protowire.AppendTag(buf, FieldName, protowire.BytesType)
		buf = protowire.AppendString(buf, r.Name)
	}
	if r.ID != 0 {
		buf = protowire.AppendTag(buf, FieldID, protowire.VarintType)
		// int32 is sign-extended, so negative ids take ten bytes.
		buf = protowire.AppendVarint(buf, uint64(int64(r.ID)))
	}
	return buf
}

// Decode parses data into a SimpleRequest. Absent fields keep their zero
// value and unknown fields are skipped. On failure the returned error
// satisfies errors.Is(err, ErrMalformedInput) and the record is empty.
func (c *SimpleRequestCodec) Decode(data []byte) (SimpleRequest, error) {
	var r SimpleRequest
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return SimpleRequest{}, malformed(protowire.ParseError(n), "read tag")
		}
		data = data[n:]

		switch {
		case num == FieldName && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return SimpleRequest{}, malformed(protowire.ParseError(n), "field %d (name)", num)
			}
			r.Name = string(v)
			data = data[n:]
		case num == FieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return SimpleRequest{}, malformed(protowire.ParseError(n), "field %d (id)", num)
			}
			r.ID = int32(v)
			data = data[n:]
		default:
			n, err := skipField(num, typ, data)
			if err != nil {
				return SimpleRequest{}, err
			}
			data = data[n:]
		}
	}
	return r, nil
}

// skipField returns the length of an unknown field's value. Groups are not
// skipped: they never appear in proto3 payloads.
func skipField(num protowire.Number, typ protowire.Type, data []byte) (int, error) {
	switch typ {
	case protowire.VarintType, protowire.Fixed32Type, protowire.Fixed64Type, protowire.BytesType:
		n := protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return 0, malformed(protowire.ParseError(n), "skip field %d", num)
		}
		return n, nil
	default:
		return 0, errors.Wrapf(ErrMalformedInput, "field %d: unsupported wire type %d", num, typ)
	}
}

// malformed wraps ErrMalformedInput with the position and the protowire cause.
func malformed(cause error, format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedInput, format+": %v", append(args, cause)...)
}
