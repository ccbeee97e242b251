package serializer

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// ProtoSerializer 使用 Protobuf 线格式进行二进制序列化。
//
// 对应的消息定义如下，未知字段在解码时被跳过：
//
//	message Stream { repeated Record records = 1; }
//	message Record { uint64 id = 1; Bundle bundle = 2; }
//	message Bundle { string type = 1; uint32 version = 2; Bundle super = 3; repeated Field fields = 4; }
//	message Field  { string name = 1; uint32 kind = 2; uint64 varint = 3; fixed64 float = 4;
//	                 bytes data = 5; repeated Ref refs = 6; }
//	message Ref    { uint64 id = 1; string type = 2; }
//
// int 类别使用 zigzag 编码写入 varint 字段。
type ProtoSerializer struct{}

// 编译期断言：确保 ProtoSerializer 实现了 Serializer 接口。
var _ Serializer = (*ProtoSerializer)(nil)

const (
	streamRecords protowire.Number = 1

	recordID     protowire.Number = 1
	recordBundle protowire.Number = 2

	bundleType    protowire.Number = 1
	bundleVersion protowire.Number = 2
	bundleSuper   protowire.Number = 3
	bundleFields  protowire.Number = 4

	fieldName   protowire.Number = 1
	fieldKind   protowire.Number = 2
	fieldVarint protowire.Number = 3
	fieldFloat  protowire.Number = 4
	fieldData   protowire.Number = 5
	fieldRefs   protowire.Number = 6

	refID   protowire.Number = 1
	refType protowire.Number = 2
)

func (ProtoSerializer) Name() string {
	return NameProto
}

func (ProtoSerializer) Marshal(s bundle.Stream) ([]byte, error) {
	var out []byte
	for _, rec := range s {
		if rec.Bundle == nil {
			return nil, merr.WrapErrParameterInvalidMsg("serializer: record %d has no bundle", rec.ID)
		}
		var msg []byte
		msg = protowire.AppendTag(msg, recordID, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(rec.ID))
		msg = protowire.AppendTag(msg, recordBundle, protowire.BytesType)
		msg = protowire.AppendBytes(msg, appendBundle(nil, rec.Bundle))

		out = protowire.AppendTag(out, streamRecords, protowire.BytesType)
		out = protowire.AppendBytes(out, msg)
	}
	return out, nil
}

func appendBundle(b []byte, bd *bundle.Bundle) []byte {
	b = protowire.AppendTag(b, bundleType, protowire.BytesType)
	b = protowire.AppendString(b, string(bd.TypeName()))
	b = protowire.AppendTag(b, bundleVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(bd.Version()))
	if bd.Super() != nil {
		b = protowire.AppendTag(b, bundleSuper, protowire.BytesType)
		b = protowire.AppendBytes(b, appendBundle(nil, bd.Super()))
	}
	bd.Range(func(name bundle.EntityName, v bundle.Value) bool {
		b = protowire.AppendTag(b, bundleFields, protowire.BytesType)
		b = protowire.AppendBytes(b, appendField(nil, name, v))
		return true
	})
	return b
}

func appendField(b []byte, name bundle.EntityName, v bundle.Value) []byte {
	b = protowire.AppendTag(b, fieldName, protowire.BytesType)
	b = protowire.AppendString(b, string(name))
	b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(v.Kind()))

	appendVarint := func(x uint64) {
		b = protowire.AppendTag(b, fieldVarint, protowire.VarintType)
		b = protowire.AppendVarint(b, x)
	}
	appendRef := func(ref bundle.EntityReference) {
		var msg []byte
		msg = protowire.AppendTag(msg, refID, protowire.VarintType)
		msg = protowire.AppendVarint(msg, uint64(ref.ID))
		if ref.TypeName != "" {
			msg = protowire.AppendTag(msg, refType, protowire.BytesType)
			msg = protowire.AppendString(msg, string(ref.TypeName))
		}
		b = protowire.AppendTag(b, fieldRefs, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}

	switch v.Kind() {
	case bundle.KindBool:
		x, _ := v.Bool()
		appendVarint(protowire.EncodeBool(x))
	case bundle.KindInt:
		x, _ := v.Int()
		appendVarint(protowire.EncodeZigZag(x))
	case bundle.KindUint:
		x, _ := v.Uint()
		appendVarint(x)
	case bundle.KindFloat:
		x, _ := v.Float()
		b = protowire.AppendTag(b, fieldFloat, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(x))
	case bundle.KindString:
		x, _ := v.Str()
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendString(b, x)
	case bundle.KindBytes:
		x, _ := v.Bytes()
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, x)
	case bundle.KindReference:
		ref, _ := v.Reference()
		appendRef(ref)
	case bundle.KindReferenceList:
		refs, _ := v.ReferenceList()
		for _, ref := range refs {
			appendRef(ref)
		}
	}
	return b
}

func (ProtoSerializer) Unmarshal(data []byte) (bundle.Stream, error) {
	var s bundle.Stream
	err := walk(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if num != streamRecords || typ != protowire.BytesType {
			return nil
		}
		rec, err := consumeRecord(value)
		if err != nil {
			return err
		}
		s = append(s, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// walk 依次遍历 data 中的顶层字段。varint 与 fixed64 字段的 value 为原始编码字节。
func walk(data []byte, fn func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return corrupted(protowire.ParseError(n))
		}
		data = data[n:]

		var value []byte
		if typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(data)
			if m < 0 {
				return corrupted(protowire.ParseError(m))
			}
			value, n = v, m
		} else {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return corrupted(protowire.ParseError(n))
			}
			value = data[:n]
		}
		if err := fn(num, typ, value); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func corrupted(err error) error {
	return merr.WrapErrStreamCorrupted(err.Error(), "proto")
}

func varintOf(typ protowire.Type, value []byte) (uint64, error) {
	if typ != protowire.VarintType {
		return 0, corrupted(fmt.Errorf("unexpected wire type %d for varint", typ))
	}
	x, n := protowire.ConsumeVarint(value)
	if n < 0 {
		return 0, corrupted(protowire.ParseError(n))
	}
	return x, nil
}

func consumeRecord(data []byte) (bundle.Record, error) {
	var rec bundle.Record
	err := walk(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case recordID:
			id, err := varintOf(typ, value)
			if err != nil {
				return err
			}
			rec.ID = bundle.InstanceID(id)
		case recordBundle:
			b, err := consumeBundle(value)
			if err != nil {
				return err
			}
			rec.Bundle = b
		}
		return nil
	})
	if err != nil {
		return bundle.Record{}, err
	}
	if rec.Bundle == nil {
		return bundle.Record{}, merr.WrapErrStreamCorrupted(fmt.Sprintf("record %d has no bundle", rec.ID), "proto")
	}
	return rec, nil
}

type protoField struct {
	name bundle.EntityName
	kind bundle.Kind
	num  uint64
	data []byte
	refs []bundle.EntityReference
}

func consumeBundle(data []byte) (*bundle.Bundle, error) {
	var (
		typeName string
		version  uint64
		super    *bundle.Bundle
		fields   []protoField
	)
	err := walk(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		var err error
		switch num {
		case bundleType:
			typeName = string(value)
		case bundleVersion:
			version, err = varintOf(typ, value)
		case bundleSuper:
			super, err = consumeBundle(value)
		case bundleFields:
			var f protoField
			f, err = consumeField(value)
			fields = append(fields, f)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	if version > math.MaxUint32 {
		return nil, corrupted(fmt.Errorf("version %d overflows uint32", version))
	}

	b := bundle.NewBuilder(bundle.EntityTypeName(typeName), uint32(version))
	if super != nil {
		b.SetSuper(super)
	}
	for _, f := range fields {
		v, err := f.value()
		if err != nil {
			return nil, err
		}
		b.Set(f.name, v)
	}
	built, err := b.Build()
	if err != nil {
		return nil, corrupted(err)
	}
	return built, nil
}

func consumeField(data []byte) (protoField, error) {
	var f protoField
	err := walk(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		var err error
		switch num {
		case fieldName:
			f.name = bundle.EntityName(value)
		case fieldKind:
			var k uint64
			k, err = varintOf(typ, value)
			f.kind = bundle.Kind(k)
		case fieldVarint:
			f.num, err = varintOf(typ, value)
		case fieldFloat:
			x, n := protowire.ConsumeFixed64(value)
			if typ != protowire.Fixed64Type || n < 0 {
				return corrupted(fmt.Errorf("field %s: malformed fixed64", f.name))
			}
			f.num = x
		case fieldData:
			f.data = append([]byte{}, value...)
		case fieldRefs:
			var ref bundle.EntityReference
			ref, err = consumeRef(value)
			f.refs = append(f.refs, ref)
		}
		return err
	})
	return f, err
}

func consumeRef(data []byte) (bundle.EntityReference, error) {
	var ref bundle.EntityReference
	err := walk(data, func(num protowire.Number, typ protowire.Type, value []byte) error {
		switch num {
		case refID:
			id, err := varintOf(typ, value)
			if err != nil {
				return err
			}
			ref.ID = bundle.InstanceID(id)
		case refType:
			ref.TypeName = bundle.EntityTypeName(value)
		}
		return nil
	})
	return ref, err
}

func (f protoField) value() (bundle.Value, error) {
	switch f.kind {
	case bundle.KindBool:
		return bundle.BoolValue(protowire.DecodeBool(f.num)), nil
	case bundle.KindInt:
		return bundle.IntValue(protowire.DecodeZigZag(f.num)), nil
	case bundle.KindUint:
		return bundle.UintValue(f.num), nil
	case bundle.KindFloat:
		return bundle.FloatValue(math.Float64frombits(f.num)), nil
	case bundle.KindString:
		return bundle.StringValue(string(f.data)), nil
	case bundle.KindBytes:
		return bundle.BytesValue(f.data), nil
	case bundle.KindReference:
		if len(f.refs) > 1 {
			return bundle.Value{}, corrupted(fmt.Errorf("field %s holds %d references", f.name, len(f.refs)))
		}
		if len(f.refs) == 0 {
			return bundle.ReferenceValue(bundle.NullReference()), nil
		}
		return bundle.ReferenceValue(f.refs[0]), nil
	case bundle.KindReferenceList:
		return bundle.ReferenceListValue(f.refs), nil
	default:
		return bundle.Value{}, corrupted(fmt.Errorf("field %s has unknown kind %d", f.name, f.kind))
	}
}
