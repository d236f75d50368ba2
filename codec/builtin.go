package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/shopspring/decimal"
)

func init() {
	RegisterKeyCodec(Uint64Codec{})
	RegisterValueCodec(Uint64Codec{})
	RegisterKeyCodec(BytesCodec{})
	RegisterValueCodec(BytesCodec{})
	RegisterKeyCodec(StringCodec{})
	RegisterValueCodec(StringCodec{})
	RegisterKeyCodec(DecimalCodec{})
	RegisterValueCodec(DecimalCodec{})
}

// Uint64Codec stores a uint64 key or value as 8 big-endian bytes, the same
// encoding the core uses for page offsets and revisions.
type Uint64Codec struct{}

func (Uint64Codec) Name() string { return "uint64" }

func (Uint64Codec) Encode(v interface{}) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v.(uint64))
	return b
}

func (Uint64Codec) Decode(b []byte) interface{} {
	return binary.BigEndian.Uint64(b)
}

func (Uint64Codec) Compare(a, b interface{}) int {
	x, y := a.(uint64), b.(uint64)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// BytesCodec stores a []byte key or value verbatim, ordered lexicographically.
type BytesCodec struct{}

func (BytesCodec) Name() string                    { return "bytes" }
func (BytesCodec) Encode(v interface{}) []byte     { return v.([]byte) }
func (BytesCodec) Decode(b []byte) interface{}     { return append([]byte(nil), b...) }
func (BytesCodec) Compare(a, b interface{}) int {
	return bytes.Compare(a.([]byte), b.([]byte))
}

// StringCodec stores a string key or value as UTF-8 bytes, ordered
// byte-lexicographically (equivalent to Go's native string ordering).
type StringCodec struct{}

func (StringCodec) Name() string                { return "string" }
func (StringCodec) Encode(v interface{}) []byte { return []byte(v.(string)) }
func (StringCodec) Decode(b []byte) interface{} { return string(b) }
func (StringCodec) Compare(a, b interface{}) int {
	x, y := a.(string), b.(string)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

// DecimalCodec stores a decimal.Decimal key or value using its canonical
// string form, so a managed tree can hold exact amounts (money, quantities)
// without a caller-supplied codec.
type DecimalCodec struct{}

func (DecimalCodec) Name() string { return "decimal" }

func (DecimalCodec) Encode(v interface{}) []byte {
	return []byte(v.(decimal.Decimal).String())
}

func (DecimalCodec) Decode(b []byte) interface{} {
	d, err := decimal.NewFromString(string(b))
	if err != nil {
		panic(err)
	}
	return d
}

func (DecimalCodec) Compare(a, b interface{}) int {
	return a.(decimal.Decimal).Cmp(b.(decimal.Decimal))
}
