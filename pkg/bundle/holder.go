package bundle

import (
	"math"
	"reflect"
	"time"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// Holder 负责在 bundle 中读写一个具名的标量字段。
//
// 可选字段缺失时 Get 返回默认值（未设置时为 T 的零值）；
// 必填字段缺失时返回 MissingMandatoryField。
type Holder[T any] struct {
	name      EntityName
	kind      Kind
	mandatory bool
	def       T
	encode    func(T) Value
	decode    func(name EntityName, v Value) (T, error)
}

func newHolder[T any](name EntityName, kind Kind, encode func(T) Value, decode func(EntityName, Value) (T, error)) Holder[T] {
	return Holder[T]{name: name, kind: kind, encode: encode, decode: decode}
}

func (h Holder[T]) Name() EntityName {
	return h.name
}

func (h Holder[T]) Kind() Kind {
	return h.kind
}

func (h Holder[T]) IsMandatory() bool {
	return h.mandatory
}

// Mandatory 返回一个标记为必填的副本。
func (h Holder[T]) Mandatory() Holder[T] {
	h.mandatory = true
	return h
}

// WithDefault 返回一个缺省值为 v 的副本。
func (h Holder[T]) WithDefault(v T) Holder[T] {
	h.def = v
	return h
}

// Put 将 v 写入 b，错误累积在 Builder 中。
func (h Holder[T]) Put(b *Builder, v T) {
	b.Set(h.name, h.encode(v))
}

// Get 从 b 读取字段值。
func (h Holder[T]) Get(b *Bundle) (T, error) {
	v, ok, err := lookup(b, h.name, h.mandatory)
	if err != nil || !ok {
		return h.def, err
	}
	if v.Kind() != h.kind {
		return h.def, merr.WrapErrFieldTypeMismatch(string(h.name), v.Kind(), h.kind)
	}
	return h.decode(h.name, v)
}

// lookup 读取原始字段值，并处理必填字段缺失的情况。
func lookup(b *Bundle, name EntityName, mandatory bool) (Value, bool, error) {
	if b == nil {
		return Value{}, false, merr.WrapErrParameterMissing("bundle", string(name))
	}
	v, ok := b.Field(name)
	if !ok && mandatory {
		return Value{}, false, merr.WrapErrMissingMandatoryField(string(b.typeName), string(name))
	}
	return v, ok, nil
}

func Bool(name EntityName) Holder[bool] {
	return newHolder(name, KindBool, BoolValue, func(_ EntityName, v Value) (bool, error) {
		b, _ := v.Bool()
		return b, nil
	})
}

func Int(name EntityName) Holder[int64] {
	return newHolder(name, KindInt, IntValue, func(_ EntityName, v Value) (int64, error) {
		n, _ := v.Int()
		return n, nil
	})
}

// Int32 以 int 类别存储，读取时超出 int32 范围视为类型不匹配。
func Int32(name EntityName) Holder[int32] {
	return newHolder(name, KindInt,
		func(v int32) Value { return IntValue(int64(v)) },
		func(name EntityName, v Value) (int32, error) {
			n, _ := v.Int()
			if n < math.MinInt32 || n > math.MaxInt32 {
				return 0, merr.WrapErrFieldTypeMismatch(string(name), n, "int32")
			}
			return int32(n), nil
		})
}

func Uint(name EntityName) Holder[uint64] {
	return newHolder(name, KindUint, UintValue, func(_ EntityName, v Value) (uint64, error) {
		n, _ := v.Uint()
		return n, nil
	})
}

func Float(name EntityName) Holder[float64] {
	return newHolder(name, KindFloat, FloatValue, func(_ EntityName, v Value) (float64, error) {
		f, _ := v.Float()
		return f, nil
	})
}

func String(name EntityName) Holder[string] {
	return newHolder(name, KindString, StringValue, func(_ EntityName, v Value) (string, error) {
		s, _ := v.Str()
		return s, nil
	})
}

// Bytes 保证长度与内容精确往返，读写时均复制数据。
func Bytes(name EntityName) Holder[[]byte] {
	return newHolder(name, KindBytes, BytesValue, func(_ EntityName, v Value) ([]byte, error) {
		raw, _ := v.Bytes()
		return raw, nil
	})
}

// Time 以 RFC3339Nano 字符串存储时间，读取结果统一为 UTC。
func Time(name EntityName) Holder[time.Time] {
	return newHolder(name, KindString,
		func(t time.Time) Value { return StringValue(t.UTC().Format(time.RFC3339Nano)) },
		func(name EntityName, v Value) (time.Time, error) {
			s, _ := v.Str()
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return time.Time{}, merr.WrapErrFieldTypeMismatch(string(name), s, "RFC3339 time")
			}
			return t.UTC(), nil
		})
}

// RefHolder 读写指向另一个实体的引用字段。
//
// 写入时通过 Packer 分配实例 ID，读取时只返回 EntityReference，从不返回对象。
type RefHolder struct {
	name      EntityName
	mandatory bool
}

func Ref(name EntityName) RefHolder {
	return RefHolder{name: name}
}

func (h RefHolder) Name() EntityName {
	return h.name
}

func (h RefHolder) Mandatory() RefHolder {
	h.mandatory = true
	return h
}

// Put 写入 e 的引用。e 为 nil 时，必填字段记录 MissingMandatoryField，可选字段直接省略。
func (h RefHolder) Put(b *Builder, e Packable) {
	if isNil(e) {
		if h.mandatory {
			b.fail(merr.WrapErrMissingMandatoryField(string(b.typeName), string(h.name)))
		}
		return
	}
	ref, err := b.reference(h.name, e)
	if err != nil {
		b.fail(err)
		return
	}
	b.Set(h.name, ReferenceValue(ref))
}

// Get 返回字段中的引用；可选字段缺失时返回空引用。
func (h RefHolder) Get(b *Bundle) (EntityReference, error) {
	v, ok, err := lookup(b, h.name, h.mandatory)
	if err != nil || !ok {
		return EntityReference{}, err
	}
	ref, ok := v.Reference()
	if !ok {
		return EntityReference{}, merr.WrapErrFieldTypeMismatch(string(h.name), v.Kind(), KindReference)
	}
	return ref, nil
}

// RefListHolder 读写有序的实体引用列表，nil 元素保存为空引用以保留位置。
type RefListHolder struct {
	name      EntityName
	mandatory bool
}

func RefList(name EntityName) RefListHolder {
	return RefListHolder{name: name}
}

func (h RefListHolder) Name() EntityName {
	return h.name
}

func (h RefListHolder) Mandatory() RefListHolder {
	h.mandatory = true
	return h
}

func (h RefListHolder) Put(b *Builder, es []Packable) {
	refs := make([]EntityReference, 0, len(es))
	for _, e := range es {
		if isNil(e) {
			refs = append(refs, EntityReference{})
			continue
		}
		ref, err := b.reference(h.name, e)
		if err != nil {
			b.fail(err)
			return
		}
		refs = append(refs, ref)
	}
	b.Set(h.name, ReferenceListValue(refs))
}

func (h RefListHolder) Get(b *Bundle) ([]EntityReference, error) {
	v, ok, err := lookup(b, h.name, h.mandatory)
	if err != nil || !ok {
		return nil, err
	}
	refs, ok := v.ReferenceList()
	if !ok {
		return nil, merr.WrapErrFieldTypeMismatch(string(h.name), v.Kind(), KindReferenceList)
	}
	return refs, nil
}

// AnyHolder 根据 Go 值的动态类型选择存储类别，适用于字段类型在编译期不确定的场景。
type AnyHolder struct {
	name      EntityName
	mandatory bool
}

func Any(name EntityName) AnyHolder {
	return AnyHolder{name: name}
}

func (h AnyHolder) Name() EntityName {
	return h.name
}

func (h AnyHolder) Mandatory() AnyHolder {
	h.mandatory = true
	return h
}

// Put 写入 v。不支持的 Go 类型记录 UnrepresentableField。
func (h AnyHolder) Put(b *Builder, v any) {
	if v == nil {
		if h.mandatory {
			b.fail(merr.WrapErrMissingMandatoryField(string(b.typeName), string(h.name)))
		}
		return
	}
	var val Value
	switch x := v.(type) {
	case Value:
		val = x
	case bool:
		val = BoolValue(x)
	case int:
		val = IntValue(int64(x))
	case int8:
		val = IntValue(int64(x))
	case int16:
		val = IntValue(int64(x))
	case int32:
		val = IntValue(int64(x))
	case int64:
		val = IntValue(x)
	case uint:
		val = UintValue(uint64(x))
	case uint8:
		val = UintValue(uint64(x))
	case uint16:
		val = UintValue(uint64(x))
	case uint32:
		val = UintValue(uint64(x))
	case uint64:
		val = UintValue(x)
	case float32:
		val = FloatValue(float64(x))
	case float64:
		val = FloatValue(x)
	case string:
		val = StringValue(x)
	case []byte:
		val = BytesValue(x)
	case time.Time:
		val = StringValue(x.UTC().Format(time.RFC3339Nano))
	case EntityReference:
		val = ReferenceValue(x)
	case []EntityReference:
		val = ReferenceListValue(x)
	case Packable:
		if isNil(x) {
			if h.mandatory {
				b.fail(merr.WrapErrMissingMandatoryField(string(b.typeName), string(h.name)))
			}
			return
		}
		ref, err := b.reference(h.name, x)
		if err != nil {
			b.fail(err)
			return
		}
		val = ReferenceValue(ref)
	case []Packable:
		RefList(h.name).Put(b, x)
		return
	default:
		b.fail(merr.WrapErrUnrepresentableField(string(h.name), reflect.TypeOf(v).String()))
		return
	}
	b.Set(h.name, val)
}

// Get 返回字段的自然 Go 表示：bool、int64、uint64、float64、string、[]byte、
// EntityReference 或 []EntityReference。可选字段缺失时返回 nil。
func (h AnyHolder) Get(b *Bundle) (any, error) {
	v, ok, err := lookup(b, h.name, h.mandatory)
	if err != nil || !ok {
		return nil, err
	}
	switch v.Kind() {
	case KindBool:
		x, _ := v.Bool()
		return x, nil
	case KindInt:
		x, _ := v.Int()
		return x, nil
	case KindUint:
		x, _ := v.Uint()
		return x, nil
	case KindFloat:
		x, _ := v.Float()
		return x, nil
	case KindString:
		x, _ := v.Str()
		return x, nil
	case KindBytes:
		x, _ := v.Bytes()
		return x, nil
	case KindReference:
		x, _ := v.Reference()
		return x, nil
	case KindReferenceList:
		x, _ := v.ReferenceList()
		return x, nil
	default:
		return nil, merr.WrapErrFieldTypeMismatch(string(h.name), v.Kind(), "any")
	}
}

// isNil 同时识别 nil 接口与包装了 nil 指针的接口。
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
