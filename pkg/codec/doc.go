// Package codec encodes and decodes SimpleRequest, the record exchanged on
// the demo topic.
//
// # Wire Format
//
// The encoding is byte-compatible with protocol buffers for the schema
//
//	message SimpleRequest {
//	  string name = 1;
//	  int32  id   = 2;
//	}
//
// Each field is a tag (field number << 3 | wire type) followed by its value:
//   - name: tag 0x0A (length-delimited), varint length, UTF-8 bytes
//   - id: tag 0x10 (varint), the value sign-extended to 64 bits
//
// Fields holding their zero value are omitted, so the empty record encodes
// to zero bytes. For example {name: "abc", id: 2} encodes to
//
//	0A 03 61 62 63 10 02
//
// # Decoding
//
// Decode accepts fields in any order. Unknown fields using the varint,
// fixed32, fixed64 or length-delimited wire types are skipped so newer
// producers can add fields. Truncated input, group wire types, reserved
// wire types and field number zero are rejected with an error wrapping
// ErrMalformedInput:
//
//	req, err := codec.NewSimpleRequestCodec().Decode(payload)
//	if errors.Is(err, codec.ErrMalformedInput) {
//	    // log and drop the message
//	}
//
// # Thread Safety
//
// SimpleRequestCodec holds no state and is safe for concurrent use.
// SimpleRequest is a plain value.
package codec
