package bundle

import (
	"fmt"
	"math"
	"slices"
	"strconv"
)

// Kind 描述 bundle 字段值的类别。
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindBytes
	KindReference
	KindReferenceList
)

var kindNames = map[Kind]string{
	KindInvalid:       "invalid",
	KindBool:          "bool",
	KindInt:           "int",
	KindUint:          "uint",
	KindFloat:         "float",
	KindString:        "string",
	KindBytes:         "bytes",
	KindReference:     "reference",
	KindReferenceList: "reference_list",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// ParseKind 是 Kind.String 的逆操作。
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s && k != KindInvalid {
			return k, true
		}
	}
	return KindInvalid, false
}

// Value 是一个不可变的字段值，可能是标量、字符串、字节序列或实体引用。
//
// 零值 Value 的 Kind 为 KindInvalid，不能写入 bundle。
type Value struct {
	kind Kind
	num  uint64
	str  string
	raw  []byte
	ref  EntityReference
	refs []EntityReference
}

func BoolValue(v bool) Value {
	var n uint64
	if v {
		n = 1
	}
	return Value{kind: KindBool, num: n}
}

func IntValue(v int64) Value {
	return Value{kind: KindInt, num: uint64(v)}
}

func UintValue(v uint64) Value {
	return Value{kind: KindUint, num: v}
}

func FloatValue(v float64) Value {
	return Value{kind: KindFloat, num: math.Float64bits(v)}
}

func StringValue(v string) Value {
	return Value{kind: KindString, str: v}
}

// BytesValue 复制 v 的内容。nil 与空切片都保存为长度为 0 的字节序列。
func BytesValue(v []byte) Value {
	return Value{kind: KindBytes, raw: append(make([]byte, 0, len(v)), v...)}
}

func ReferenceValue(ref EntityReference) Value {
	return Value{kind: KindReference, ref: ref}
}

func ReferenceListValue(refs []EntityReference) Value {
	return Value{kind: KindReferenceList, refs: append(make([]EntityReference, 0, len(refs)), refs...)}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsValid() bool {
	return v.kind != KindInvalid
}

func (v Value) Bool() (bool, bool) {
	return v.num != 0, v.kind == KindBool
}

func (v Value) Int() (int64, bool) {
	return int64(v.num), v.kind == KindInt
}

func (v Value) Uint() (uint64, bool) {
	return v.num, v.kind == KindUint
}

func (v Value) Float() (float64, bool) {
	return math.Float64frombits(v.num), v.kind == KindFloat
}

func (v Value) Str() (string, bool) {
	return v.str, v.kind == KindString
}

// Bytes 返回字节内容的副本。
func (v Value) Bytes() ([]byte, bool) {
	if v.kind != KindBytes {
		return nil, false
	}
	return append(make([]byte, 0, len(v.raw)), v.raw...), true
}

func (v Value) Reference() (EntityReference, bool) {
	return v.ref, v.kind == KindReference
}

// ReferenceList 返回引用列表的副本。
func (v Value) ReferenceList() ([]EntityReference, bool) {
	if v.kind != KindReferenceList {
		return nil, false
	}
	return append(make([]EntityReference, 0, len(v.refs)), v.refs...), true
}

// references 返回值中包含的全部非空引用，不做复制。
func (v Value) references() []EntityReference {
	switch v.kind {
	case KindReference:
		if v.ref.IsNull() {
			return nil
		}
		return []EntityReference{v.ref}
	case KindReferenceList:
		out := make([]EntityReference, 0, len(v.refs))
		for _, ref := range v.refs {
			if !ref.IsNull() {
				out = append(out, ref)
			}
		}
		return out
	default:
		return nil
	}
}

// Equal 判断两个值的类别与内容是否完全一致。
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.str == o.str
	case KindBytes:
		return slices.Equal(v.raw, o.raw)
	case KindReference:
		return v.ref == o.ref
	case KindReferenceList:
		return slices.Equal(v.refs, o.refs)
	default:
		return v.num == o.num
	}
}

func (v Value) String() string {
	switch v.kind {
	case KindBool:
		b, _ := v.Bool()
		return strconv.FormatBool(b)
	case KindInt:
		return strconv.FormatInt(int64(v.num), 10)
	case KindUint:
		return strconv.FormatUint(v.num, 10)
	case KindFloat:
		f, _ := v.Float()
		return strconv.FormatFloat(f, 'g', -1, 64)
	case KindString:
		return strconv.Quote(v.str)
	case KindBytes:
		return fmt.Sprintf("bytes(%d)", len(v.raw))
	case KindReference:
		return v.ref.String()
	case KindReferenceList:
		return fmt.Sprintf("%v", v.refs)
	default:
		return "<invalid>"
	}
}
