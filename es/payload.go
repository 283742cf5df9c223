package es

import "bytes"

// Payload is an opaque typed value: a type discriminator plus raw bytes.
// The store never decodes Data.
type Payload struct {
	// Type is the discriminator used by callers to pick a decoder.
	Type string

	// Data is the encoded value.
	Data []byte
}

// NewPayload returns a pointer payload, convenient for optional metadata.
func NewPayload(typ string, data []byte) *Payload {
	return &Payload{Type: typ, Data: data}
}

// Clone returns a deep copy. Nil stays nil.
func (p *Payload) Clone() *Payload {
	if p == nil {
		return nil
	}
	c := &Payload{Type: p.Type}
	if p.Data != nil {
		c.Data = append([]byte(nil), p.Data...)
	}
	return c
}

// Equal reports whether both payloads are absent or carry the same type and bytes.
func (p *Payload) Equal(o *Payload) bool {
	if p == nil || o == nil {
		return p == nil && o == nil
	}
	return p.Type == o.Type && bytes.Equal(p.Data, o.Data)
}
