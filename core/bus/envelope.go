package bus

import (
	"fmt"
	"time"

	"github.com/strufkin/pyzbus/internal/codec"
)

// Fields is the free-form payload portion of an envelope.
type Fields map[string]any

// Header keys stamped by the runtime. Everything else in a frame is payload.
const (
	HeaderID        = "Id"
	HeaderMessage   = "Message"
	HeaderFrom      = "From"
	HeaderSendTime  = "SendTime"
	HeaderSequence  = "Sequence"
	HeaderTo        = "To"
	HeaderReplyTo   = "ReplyTo"
	HeaderReplyToID = "ReplyToId"
	HeaderReceived  = "Received"
)

var headerKeys = map[string]struct{}{
	HeaderID:        {},
	HeaderMessage:   {},
	HeaderFrom:      {},
	HeaderSendTime:  {},
	HeaderSequence:  {},
	HeaderTo:        {},
	HeaderReplyTo:   {},
	HeaderReplyToID: {},
	HeaderReceived:  {},
}

// Envelope is one bus message: mandatory routing/correlation headers plus
// arbitrary payload fields. On the wire both parts are flattened into a
// single JSON object.
type Envelope struct {
	ID        string   // unique per send, stamped by Tell/Ask
	Message   string   // message type, drives handler lookup
	From      string   // sender identity
	SendTime  float64  // sender clock, epoch seconds
	Sequence  int64    // strictly increasing per sender
	To        string   // optional target identity or "*"; informational
	ReplyTo   []string // identities expecting a correlated reply
	ReplyToID string   // set on replies only; Id of the message replied to
	Received  float64  // receiver clock, epoch seconds; never transmitted

	Fields Fields
}

// New creates an envelope for the given message type. Headers are stamped
// later, on send.
func New(message string, fields Fields) *Envelope {
	return &Envelope{Message: message, Fields: fields}
}

// IsReply reports whether the envelope is a correlated reply.
func (e *Envelope) IsReply() bool { return e.ReplyToID != "" }

// Field returns a payload field.
func (e *Envelope) Field(key string) (any, bool) {
	v, ok := e.Fields[key]
	return v, ok
}

// StringField returns a payload field as a string, or "" when absent or not
// a string.
func (e *Envelope) StringField(key string) string {
	if v, ok := e.Fields[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Payload returns a copy of the non-header fields. The UpdateSettings
// handler merges exactly this into the live settings.
func (e *Envelope) Payload() Fields {
	out := make(Fields, len(e.Fields))
	for k, v := range e.Fields {
		if _, hdr := headerKeys[k]; hdr {
			continue
		}
		out[k] = v
	}
	return out
}

// Validate checks the sent-envelope invariants.
func (e *Envelope) Validate() error {
	if e.Message == "" {
		return ErrNoMessageType
	}
	if e.ReplyToID != "" && len(e.ReplyTo) > 0 {
		return ErrReplyAndRequest
	}
	return nil
}

var wire codec.Codec = codec.JSONCodec{}

// Encode flattens the envelope into a single JSON object. Received is local
// bookkeeping and is never transmitted.
func (e *Envelope) Encode() ([]byte, error) {
	m := make(map[string]any, len(e.Fields)+8)
	for k, v := range e.Fields {
		if _, hdr := headerKeys[k]; hdr {
			continue
		}
		m[k] = v
	}
	m[HeaderID] = e.ID
	m[HeaderMessage] = e.Message
	m[HeaderFrom] = e.From
	m[HeaderSendTime] = e.SendTime
	m[HeaderSequence] = e.Sequence
	if e.To != "" {
		m[HeaderTo] = e.To
	}
	if len(e.ReplyTo) > 0 {
		m[HeaderReplyTo] = e.ReplyTo
	}
	if e.ReplyToID != "" {
		m[HeaderReplyToID] = e.ReplyToID
	}
	return wire.Marshal(m)
}

// Decode parses a wire frame into an envelope.
func Decode(frame []byte) (*Envelope, error) {
	var m map[string]any
	if err := wire.Unmarshal(frame, &m); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	e := &Envelope{Fields: make(Fields)}
	for k, v := range m {
		switch k {
		case HeaderID:
			e.ID, _ = v.(string)
		case HeaderMessage:
			e.Message, _ = v.(string)
		case HeaderFrom:
			e.From, _ = v.(string)
		case HeaderSendTime:
			e.SendTime = toFloat(v)
		case HeaderSequence:
			e.Sequence = int64(toFloat(v))
		case HeaderTo:
			e.To, _ = v.(string)
		case HeaderReplyTo:
			e.ReplyTo = toStrings(v)
		case HeaderReplyToID:
			e.ReplyToID, _ = v.(string)
		case HeaderReceived:
			// local-only; a peer should not send it, drop if present
		default:
			e.Fields[k] = v
		}
	}
	return e, nil
}

// Now returns the envelope clock: epoch seconds as a float.
func Now() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}

func toStrings(v any) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []any:
		out := make([]string, 0, len(l))
		for _, i := range l {
			if s, ok := i.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return []string{l}
	}
	return nil
}
