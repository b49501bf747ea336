package chatapi

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Field numbers follow chat.proto. Zero scalars are omitted like proto3 does,
// embedded messages of a oneof are always written so an empty snapshot keeps its presence.

func (m *Message) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.ID)
	b = appendVarint(b, 2, m.Sequence)
	b = appendString(b, 3, m.ChannelID)
	b = appendString(b, 4, m.DisplayName)
	b = appendString(b, 5, m.Text)
	return appendTime(b, 6, m.CreatedAt)
}

func (m *Message) unmarshalWire(b []byte) error {
	*m = Message{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			m.ID, err = f.asString()
		case 2:
			m.Sequence, err = f.asVarint()
		case 3:
			m.ChannelID, err = f.asString()
		case 4:
			m.DisplayName, err = f.asString()
		case 5:
			m.Text, err = f.asString()
		case 6:
			m.CreatedAt, err = f.asTime()
		}
		return err
	})
}

func (r *ConnectRequest) appendWire(b []byte) ([]byte, error) {
	return appendString(b, 1, r.ChannelID), nil
}

func (r *ConnectRequest) unmarshalWire(b []byte) error {
	*r = ConnectRequest{}
	return walk(b, func(f field) (err error) {
		if f.num == 1 {
			r.ChannelID, err = f.asString()
		}
		return err
	})
}

func (w *Welcome) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, w.SessionID)
	return appendString(b, 2, w.DisplayName), nil
}

func (w *Welcome) unmarshalWire(b []byte) error {
	*w = Welcome{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			w.SessionID, err = f.asString()
		case 2:
			w.DisplayName, err = f.asString()
		}
		return err
	})
}

func (s *Snapshot) appendWire(b []byte) ([]byte, error) {
	return appendMessages(b, 1, s.Messages)
}

func (s *Snapshot) unmarshalWire(b []byte) error {
	*s = Snapshot{}
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		return f.appendMessageTo(&s.Messages)
	})
}

func (e *ChannelEvent) appendWire(b []byte) ([]byte, error) {
	switch {
	case e.Welcome != nil:
		return appendEmbedded(b, 1, e.Welcome)
	case e.Snapshot != nil:
		return appendEmbedded(b, 2, e.Snapshot)
	case e.Message != nil:
		return appendEmbedded(b, 3, e.Message)
	}
	return b, nil
}

// unmarshalWire keeps the last member of the oneof, as protobuf does.
func (e *ChannelEvent) unmarshalWire(b []byte) error {
	*e = ChannelEvent{}
	return walk(b, func(f field) error {
		switch f.num {
		case 1:
			welcome := &Welcome{}
			if err := f.asMessage(welcome); err != nil {
				return err
			}
			*e = ChannelEvent{Welcome: welcome}
		case 2:
			snapshot := &Snapshot{}
			if err := f.asMessage(snapshot); err != nil {
				return err
			}
			*e = ChannelEvent{Snapshot: snapshot}
		case 3:
			message := &Message{}
			if err := f.asMessage(message); err != nil {
				return err
			}
			*e = ChannelEvent{Message: message}
		}
		return nil
	})
}

func (r *PostMessageRequest) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, r.ChannelID)
	b = appendString(b, 2, r.SessionID)
	return appendString(b, 3, r.Text), nil
}

func (r *PostMessageRequest) unmarshalWire(b []byte) error {
	*r = PostMessageRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.ChannelID, err = f.asString()
		case 2:
			r.SessionID, err = f.asString()
		case 3:
			r.Text, err = f.asString()
		}
		return err
	})
}

func (r *PostMessageResponse) appendWire(b []byte) ([]byte, error) {
	return appendEmbedded(b, 1, &r.Message)
}

func (r *PostMessageResponse) unmarshalWire(b []byte) error {
	*r = PostMessageResponse{}
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		return f.asMessage(&r.Message)
	})
}

func (r *HistoryRequest) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, r.ChannelID)
	b = appendVarint(b, 2, r.Before)
	// int32 is sign extended on the wire
	return appendVarint(b, 3, uint64(int64(r.Limit))), nil
}

func (r *HistoryRequest) unmarshalWire(b []byte) error {
	*r = HistoryRequest{}
	return walk(b, func(f field) (err error) {
		switch f.num {
		case 1:
			r.ChannelID, err = f.asString()
		case 2:
			r.Before, err = f.asVarint()
		case 3:
			var limit uint64
			limit, err = f.asVarint()
			r.Limit = int32(limit)
		}
		return err
	})
}

func (r *HistoryResponse) appendWire(b []byte) ([]byte, error) {
	return appendMessages(b, 1, r.Messages)
}

func (r *HistoryResponse) unmarshalWire(b []byte) error {
	*r = HistoryResponse{}
	return walk(b, func(f field) error {
		if f.num != 1 {
			return nil
		}
		return f.appendMessageTo(&r.Messages)
	})
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendEmbedded(b []byte, num protowire.Number, m wireMessage) ([]byte, error) {
	inner, err := m.appendWire(nil)
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner), nil
}

func appendMessages(b []byte, num protowire.Number, messages []Message) ([]byte, error) {
	var err error
	for i := range messages {
		if b, err = appendEmbedded(b, num, &messages[i]); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// appendTime writes a google.protobuf.Timestamp, a zero time is left out.
func appendTime(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	if t.IsZero() {
		return b, nil
	}
	inner, err := proto.Marshal(timestamppb.New(t))
	if err != nil {
		return nil, err
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, inner), nil
}

type field struct {
	num    protowire.Number
	typ    protowire.Type
	bytes  []byte
	varint uint64
}

// walk hands every field of b to fn. Unknown field numbers are left to fn, which ignores them.
func walk(b []byte, fn func(field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(f); err != nil {
			return err
		}
	}
	return nil
}

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d has wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

func (f field) asString() (string, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return "", err
	}
	return string(f.bytes), nil
}

func (f field) asVarint() (uint64, error) {
	if err := f.expect(protowire.VarintType); err != nil {
		return 0, err
	}
	return f.varint, nil
}

func (f field) asMessage(m wireMessage) error {
	if err := f.expect(protowire.BytesType); err != nil {
		return err
	}
	return m.unmarshalWire(f.bytes)
}

func (f field) appendMessageTo(messages *[]Message) error {
	var m Message
	if err := f.asMessage(&m); err != nil {
		return err
	}
	*messages = append(*messages, m)
	return nil
}

func (f field) asTime() (time.Time, error) {
	if err := f.expect(protowire.BytesType); err != nil {
		return time.Time{}, err
	}
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(f.bytes, &ts); err != nil {
		return time.Time{}, err
	}
	if err := ts.CheckValid(); err != nil {
		return time.Time{}, err
	}
	return ts.AsTime(), nil
}
