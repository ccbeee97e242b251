package framer

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Header 是每一帧的报文头，描述 payload 的编码方式。
//
//	message Header   { string format_version = 1; string serializer = 2; uint64 flags = 3;
//	                   uint32 records = 4; uint32 size = 5; }
//	message Envelope { Header header = 1; bytes payload = 2; }
type Header struct {
	// FormatVersion 为编码格式的语义化版本号。
	FormatVersion string
	// Serializer 为 payload 使用的序列化格式名。
	Serializer string
	// Flags 标记 payload 是否经过压缩/加密。
	Flags uint64
	// Records 为 payload 中的记录数。
	Records uint32
	// Size 等于 Envelope.Payload 的长度，由 WriteFrame 自动填写。
	Size uint32
}

// Envelope 是一帧的完整内容。
type Envelope struct {
	Header  *Header
	Payload []byte
}

const (
	envelopeHeader  protowire.Number = 1
	envelopePayload protowire.Number = 2

	headerFormatVersion protowire.Number = 1
	headerSerializer    protowire.Number = 2
	headerFlags         protowire.Number = 3
	headerRecords       protowire.Number = 4
	headerSize          protowire.Number = 5
)

// MarshalBinary 将 Header 编码为 protobuf 线格式。
func (h *Header) MarshalBinary() ([]byte, error) {
	var b []byte
	if h.FormatVersion != "" {
		b = protowire.AppendTag(b, headerFormatVersion, protowire.BytesType)
		b = protowire.AppendString(b, h.FormatVersion)
	}
	if h.Serializer != "" {
		b = protowire.AppendTag(b, headerSerializer, protowire.BytesType)
		b = protowire.AppendString(b, h.Serializer)
	}
	if h.Flags != 0 {
		b = protowire.AppendTag(b, headerFlags, protowire.VarintType)
		b = protowire.AppendVarint(b, h.Flags)
	}
	if h.Records != 0 {
		b = protowire.AppendTag(b, headerRecords, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.Records))
	}
	if h.Size != 0 {
		b = protowire.AppendTag(b, headerSize, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(h.Size))
	}
	return b, nil
}

// UnmarshalBinary 从 protobuf 线格式解码 Header，未知字段被跳过。
func (h *Header) UnmarshalBinary(data []byte) error {
	*h = Header{}
	return walk(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case headerFormatVersion:
			h.FormatVersion = string(value)
		case headerSerializer:
			h.Serializer = string(value)
		case headerFlags, headerRecords, headerSize:
			if typ != protowire.VarintType {
				return fmt.Errorf("framer: header field %d has wire type %d", num, typ)
			}
			x, n := protowire.ConsumeVarint(value)
			if n < 0 {
				return protowire.ParseError(n)
			}
			switch num {
			case headerFlags:
				h.Flags = x
			case headerRecords:
				h.Records = uint32(x)
			default:
				h.Size = uint32(x)
			}
		}
		return nil
	})
}

func marshalEnvelope(env *Envelope) ([]byte, error) {
	var b []byte
	if env.Header != nil {
		hb, err := env.Header.MarshalBinary()
		if err != nil {
			return nil, err
		}
		b = protowire.AppendTag(b, envelopeHeader, protowire.BytesType)
		b = protowire.AppendBytes(b, hb)
	}
	if len(env.Payload) > 0 {
		b = protowire.AppendTag(b, envelopePayload, protowire.BytesType)
		b = protowire.AppendBytes(b, env.Payload)
	}
	return b, nil
}

func unmarshalEnvelope(data []byte, env *Envelope) error {
	return walk(data, func(num protowire.Number, _ protowire.Type, value []byte) error {
		switch num {
		case envelopeHeader:
			h := &Header{}
			if err := h.UnmarshalBinary(value); err != nil {
				return err
			}
			env.Header = h
		case envelopePayload:
			env.Payload = append([]byte(nil), value...)
		}
		return nil
	})
}

func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		var value []byte
		if typ == protowire.BytesType {
			value, n = protowire.ConsumeBytes(data)
		} else {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n >= 0 {
				value = data[:n]
			}
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		if err := fn(num, typ, value); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
