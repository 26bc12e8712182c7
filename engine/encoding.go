package engine

import "encoding/base64"

var encoding = base64.StdEncoding.Strict()

// EncodedValue is the text-safe form of a single encrypted reading: the
// padded standard base64 encoding of the scheme ciphertext. It is the only
// artifact callers store or transmit.
type EncodedValue string

// NewEncodedValue wraps raw ciphertext bytes.
func NewEncodedValue(ct []byte) EncodedValue {
	return EncodedValue(encoding.EncodeToString(ct))
}

// Bytes returns the ciphertext bytes, or an error wrapping ErrMalformedInput
// if v is empty or not valid base64.
func (v EncodedValue) Bytes() ([]byte, error) {
	if v == "" {
		return nil, Malformed("empty value")
	}
	ct, err := encoding.DecodeString(string(v))
	if err != nil {
		return nil, Malformed("invalid base64")
	}
	return ct, nil
}

// String implements fmt.Stringer.
func (v EncodedValue) String() string {
	return string(v)
}
