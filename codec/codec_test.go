package codec

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUint64CodecRoundTrip(t *testing.T) {
	c := Uint64Codec{}
	b := c.Encode(uint64(12345))
	assert.Equal(t, uint64(12345), c.Decode(b))
	assert.Equal(t, -1, c.Compare(uint64(1), uint64(2)))
	assert.Equal(t, 0, c.Compare(uint64(2), uint64(2)))
}

func TestBytesCodecOrdering(t *testing.T) {
	c := BytesCodec{}
	assert.True(t, c.Compare([]byte("a"), []byte("b")) < 0)
	assert.Equal(t, []byte("xy"), c.Decode(c.Encode([]byte("xy"))))
}

func TestStringCodecRoundTrip(t *testing.T) {
	c := StringCodec{}
	assert.Equal(t, "hello", c.Decode(c.Encode("hello")))
}

func TestDecimalCodecRoundTrip(t *testing.T) {
	c := DecimalCodec{}
	d := decimal.NewFromFloat(19.99)
	got := c.Decode(c.Encode(d)).(decimal.Decimal)
	assert.True(t, d.Equal(got))
}

func TestLookupFindsBuiltins(t *testing.T) {
	kc, ok := LookupKeyCodec("uint64")
	assert.True(t, ok)
	assert.Equal(t, "uint64", kc.Name())

	vc, ok := LookupValueCodec("decimal")
	assert.True(t, ok)
	assert.Equal(t, "decimal", vc.Name())

	_, ok = LookupKeyCodec("nonexistent")
	assert.False(t, ok)
}
