package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

const ProtocolVersion = 1

// ErrMalformedMessage reports a frame that cannot be decoded or that violates
// the message schema. It is fatal to the session on the receiving side.
var ErrMalformedMessage = errors.New("malformed message")

// Envelope wraps all protocol messages with a version and a type tag.
type Envelope struct {
	V       int             `json:"v"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope creates an envelope with the given message type and payload.
// The payload is marshaled to JSON; pass nil for bare messages.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	var rawPayload json.RawMessage
	var err error

	if payload != nil {
		rawPayload, err = json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("marshal payload: %w", err)
		}
	}

	return Envelope{
		V:       ProtocolVersion,
		Type:    msgType,
		Payload: rawPayload,
	}, nil
}

// NewClearDir builds the session-opening directory reset command.
func NewClearDir() (Envelope, error) {
	return NewEnvelope(TypeClearDir, nil)
}

// NewMkdir builds a directory creation message for the given wire path.
func NewMkdir(path string) (Envelope, error) {
	if err := ValidatePath(path); err != nil {
		return Envelope{}, err
	}
	return NewEnvelope(TypeMkdir, Mkdir{Path: path})
}

// NewFileChunk builds a chunk message after validating its schema.
func NewFileChunk(chunk FileChunk) (Envelope, error) {
	if err := chunk.Validate(); err != nil {
		return Envelope{}, err
	}
	return NewEnvelope(TypeFileChunk, chunk)
}

// NewAck builds a per-chunk outcome report.
func NewAck(ack Ack) (Envelope, error) {
	return NewEnvelope(TypeAck, ack)
}

// NewBye builds the end-of-transfer message.
func NewBye() (Envelope, error) {
	return NewEnvelope(TypeBye, nil)
}

// Encode serializes the envelope into one wire frame.
func (e Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses a wire frame into an envelope and validates the version and
// type tag. Schema validation of the payload happens in the typed accessors.
func Decode(frame []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(frame, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := e.ValidateBasic(); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

// ValidateBasic checks the envelope header against the protocol schema.
func (e Envelope) ValidateBasic() error {
	if e.V != ProtocolVersion {
		return fmt.Errorf("%w: protocol version %d, expected %d", ErrMalformedMessage, e.V, ProtocolVersion)
	}
	switch e.Type {
	case TypeClearDir, TypeMkdir, TypeFileChunk, TypeAck, TypeBye:
		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, e.Type)
	}
}

// DecodePayload unmarshals the envelope's payload into out.
func (e Envelope) DecodePayload(out any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%w: empty payload for type %q", ErrMalformedMessage, e.Type)
	}
	if err := json.Unmarshal(e.Payload, out); err != nil {
		return fmt.Errorf("%w: payload for type %q: %v", ErrMalformedMessage, e.Type, err)
	}
	return nil
}

// MkdirPayload decodes and validates a mkdir payload.
func (e Envelope) MkdirPayload() (Mkdir, error) {
	var m Mkdir
	if err := e.DecodePayload(&m); err != nil {
		return Mkdir{}, err
	}
	if err := ValidatePath(m.Path); err != nil {
		return Mkdir{}, err
	}
	return m, nil
}

// FileChunkPayload decodes and validates a file_chunk payload.
func (e Envelope) FileChunkPayload() (FileChunk, error) {
	var c FileChunk
	if err := e.DecodePayload(&c); err != nil {
		return FileChunk{}, err
	}
	if err := c.Validate(); err != nil {
		return FileChunk{}, err
	}
	return c, nil
}

// AckPayload decodes an ack payload.
func (e Envelope) AckPayload() (Ack, error) {
	var a Ack
	if err := e.DecodePayload(&a); err != nil {
		return Ack{}, err
	}
	return a, nil
}

// Validate checks the chunk against the message schema.
func (c FileChunk) Validate() error {
	if err := ValidatePath(c.Path); err != nil {
		return err
	}
	if c.Seq < 0 {
		return fmt.Errorf("%w: negative seq %d", ErrMalformedMessage, c.Seq)
	}
	return nil
}
