// Package json wraps goccy/go-json with the decoding conventions shopsync
// relies on: numbers are kept as json.Number so large IDs survive intact.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"
)

// Number is a JSON number literal kept as text
type Number = gojson.Number

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > 1024*1024 { // Don't pool very large buffers
		return
	}
	bufferPool.Put(buf)
}

// NewDecoder returns a decoder that preserves numbers as Number
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// Decode reads one JSON value from r into v, preserving numbers
func Decode(r io.Reader, v interface{}) error {
	return NewDecoder(r).Decode(v)
}

// Unmarshal decodes data into v, preserving numbers
func Unmarshal(data []byte, v interface{}) error {
	return Decode(bytes.NewReader(data), v)
}

// Marshal encodes v without HTML escaping
func Marshal(v interface{}) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)
	enc := gojson.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimRight(buf.Bytes(), "\n")
	return append([]byte(nil), out...), nil
}

// MarshalIndent is a replacement for json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// LineEncoder writes one JSON document per line (JSON Lines)
type LineEncoder struct {
	enc *gojson.Encoder
}

// NewLineEncoder creates a JSON Lines encoder writing to w
func NewLineEncoder(w io.Writer) *LineEncoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &LineEncoder{enc: enc}
}

// Encode writes v followed by a newline
func (le *LineEncoder) Encode(v interface{}) error {
	return le.enc.Encode(v)
}
