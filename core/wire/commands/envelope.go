// SPDX-FileCopyrightText: Copyright (C) 2026 Katzenpost Developers
// SPDX-License-Identifier: AGPL-3.0-only

package commands

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

const maxFields = 16

var (
	// ErrMissingField is returned when a requested field is absent or null.
	ErrMissingField = errors.New("commands: missing field")

	// ErrMalformedField is returned when a field does not decode into the
	// requested type.
	ErrMalformedField = errors.New("commands: malformed field")

	// ErrMalformedEnvelope is returned when an envelope fails to decode.
	ErrMalformedEnvelope = errors.New("commands: malformed envelope")

	cborNull      = []byte{0xf6}
	cborUndefined = []byte{0xf7}

	encMode cbor.EncMode
	decMode cbor.DecMode
)

// Envelope is the unit of application level communication: a verb, the
// sequence number stamped by the sending session, and an ordered list of
// heterogeneous CBOR encoded fields.
type Envelope struct {
	_ struct{} `cbor:",toarray"`

	Verb   string
	Seq    uint64
	Fields []cbor.RawMessage
}

// New returns an envelope carrying the given verb and fields.  A nil field
// is encoded as CBOR null.  Fields must be of a type the CBOR encoder
// supports, anything else is a programming error and panics.
func New(verb string, fields ...interface{}) *Envelope {
	e := &Envelope{Verb: verb}
	for _, f := range fields {
		e.Add(f)
	}
	return e
}

// Add appends a field to the envelope.
func (e *Envelope) Add(v interface{}) *Envelope {
	if v == nil {
		e.Fields = append(e.Fields, cbor.RawMessage(cborNull))
		return e
	}
	b, err := encMode.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("commands: impossible encode of %T: %v", v, err))
	}
	e.Fields = append(e.Fields, cbor.RawMessage(b))
	return e
}

// Len returns the number of fields.
func (e *Envelope) Len() int {
	return len(e.Fields)
}

// IsNull returns true if field i is absent, null or undefined.
func (e *Envelope) IsNull(i int) bool {
	if i < 0 || i >= len(e.Fields) {
		return true
	}
	f := e.Fields[i]
	return len(f) == 0 || bytes.Equal(f, cborNull) || bytes.Equal(f, cborUndefined)
}

// Field decodes field i into v.
func (e *Envelope) Field(i int, v interface{}) error {
	if e.IsNull(i) {
		return fmt.Errorf("%w: %s[%d]", ErrMissingField, e.Verb, i)
	}
	if err := decMode.Unmarshal(e.Fields[i], v); err != nil {
		return fmt.Errorf("%w: %s[%d]: %v", ErrMalformedField, e.Verb, i, err)
	}
	return nil
}

// String returns field i as a string, or the empty string if it is absent
// or of another type.
func (e *Envelope) String(i int) string {
	var s string
	if err := e.Field(i, &s); err != nil {
		return ""
	}
	return s
}

// Bytes returns field i as a byte slice, or nil if it is absent or of
// another type.
func (e *Envelope) Bytes(i int) []byte {
	var b []byte
	if err := e.Field(i, &b); err != nil {
		return nil
	}
	return b
}

// ToBytes serializes the envelope with deterministic encoding so that the
// same envelope always yields the same bytes.
func (e *Envelope) ToBytes() ([]byte, error) {
	return encMode.Marshal(e)
}

// FromBytes deserializes an envelope.
func FromBytes(b []byte) (*Envelope, error) {
	e := new(Envelope)
	if err := decMode.Unmarshal(b, e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if e.Verb == "" {
		return nil, fmt.Errorf("%w: empty verb", ErrMalformedEnvelope)
	}
	return e, nil
}

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxArrayElements: MaxListEntries,
		MaxNestedLevels:  maxFields,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}
