package channel

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Protocol event names and fixed refs.
const (
	EventJoin      = "phx_join"
	EventReply     = "phx_reply"
	EventError     = "phx_error"
	EventClose     = "phx_close"
	EventHeartbeat = "heartbeat"

	// systemTopic carries heartbeats and their replies.
	systemTopic = "phoenix"

	// joinRef is the correlation ref sent with every join.
	joinRef = "1"

	replyStatusOK = "ok"
)

// Envelope is the unit exchanged over the connection.
type Envelope struct {
	Topic   string  `json:"topic"`
	Event   string  `json:"event"`
	Payload Payload `json:"payload"`
	Ref     string  `json:"ref,omitempty"`
}

// Payload is the schema-free body of an envelope.
//
// It holds whatever JSON value the server sent: usually an object, but
// arrays and scalars are kept too. Numbers are held as json.Number so
// re-encoding reproduces them exactly. Consumers must use the accessors,
// which report ErrFieldMissing and ErrFieldType instead of assuming a field
// exists. The zero Payload is an absent or null body and encodes as {}.
type Payload struct {
	value any
}

// NewPayload wraps v, which should be a value encoding/json can marshal.
func NewPayload(v any) Payload {
	return Payload{value: v}
}

// Value returns the wrapped value, or nil for an absent or null body.
func (p Payload) Value() any {
	return p.value
}

// Object returns the payload as a JSON object. ok is false when the body is
// absent, null or not an object.
func (p Payload) Object() (fields map[string]any, ok bool) {
	fields, ok = p.value.(map[string]any)
	return fields, ok
}

// Field returns the value stored under key in an object payload.
func (p Payload) Field(key string) (any, error) {
	if p.value == nil {
		return nil, fmt.Errorf("%w: %s", ErrFieldMissing, key)
	}
	fields, ok := p.Object()
	if !ok {
		return nil, fmt.Errorf("%w: payload is %T, want object", ErrFieldType, p.value)
	}
	v, ok := fields[key]
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %s", ErrFieldMissing, key)
	}
	return v, nil
}

// StringField returns the string stored under key.
func (p Payload) StringField(key string) (string, error) {
	v, err := p.Field(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s is %T, want string", ErrFieldType, key, v)
	}
	return s, nil
}

// StringsField returns the list of strings stored under key.
func (p Payload) StringsField(key string) ([]string, error) {
	v, err := p.Field(key)
	if err != nil {
		return nil, err
	}

	switch list := v.(type) {
	case []string:
		return list, nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T, want string", ErrFieldType, key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T, want list", ErrFieldType, key, v)
	}
}

// Decode re-encodes the payload into v, which should be a pointer to a struct
// with json tags.
func (p Payload) Decode(v any) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrFieldType, err)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.value == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.value)
}

// UnmarshalJSON implements json.Unmarshaler. Any JSON value is accepted.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	p.value = v
	return nil
}

// JoinEnvelope returns the join message for topic.
func JoinEnvelope(topic string) Envelope {
	return Envelope{
		Topic:   topic,
		Event:   EventJoin,
		Payload: NewPayload(map[string]any{}),
		Ref:     joinRef,
	}
}

// heartbeatEnvelope returns a heartbeat message with the given ref.
func heartbeatEnvelope(ref string) Envelope {
	return Envelope{
		Topic:   systemTopic,
		Event:   EventHeartbeat,
		Payload: NewPayload(map[string]any{}),
		Ref:     ref,
	}
}

// Encode returns the JSON object form of the envelope.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// DecodeEnvelope parses an inbound frame.
//
// Both the object form and the v2 array form
// ([join_ref, ref, topic, event, payload]) are accepted. Topic and event must
// be present; the payload may be absent, null or any JSON value.
func DecodeEnvelope(data []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return Envelope{}, fmt.Errorf("%w: empty frame", ErrMalformedMessage)
	}

	var env Envelope
	var err error
	if trimmed[0] == '[' {
		env, err = decodeArrayEnvelope(trimmed)
	} else {
		err = json.Unmarshal(trimmed, &env)
	}
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrMalformedMessage, err)
	}

	if env.Topic == "" {
		return Envelope{}, fmt.Errorf("%w: missing topic", ErrMalformedMessage)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event", ErrMalformedMessage)
	}
	return env, nil
}

// arrayEnvelopeLen is the element count of a v2 frame.
const arrayEnvelopeLen = 5

func decodeArrayEnvelope(data []byte) (Envelope, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Envelope{}, err
	}
	if len(parts) != arrayEnvelopeLen {
		return Envelope{}, fmt.Errorf("array frame has %d elements, want %d", len(parts), arrayEnvelopeLen)
	}

	var env Envelope
	var ref *string
	if err := json.Unmarshal(parts[1], &ref); err != nil {
		return Envelope{}, fmt.Errorf("ref: %w", err)
	}
	if ref != nil {
		env.Ref = *ref
	}
	if err := json.Unmarshal(parts[2], &env.Topic); err != nil {
		return Envelope{}, fmt.Errorf("topic: %w", err)
	}
	if err := json.Unmarshal(parts[3], &env.Event); err != nil {
		return Envelope{}, fmt.Errorf("event: %w", err)
	}
	if err := json.Unmarshal(parts[4], &env.Payload); err != nil {
		return Envelope{}, fmt.Errorf("payload: %w", err)
	}
	return env, nil
}
