package bundle

import (
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// Field 是 bundle 中的一个命名字段。
type Field struct {
	Name  EntityName
	Value Value
}

// Bundle 是一个实体序列化后的状态：类型名、schema 版本、可选的父 bundle 以及有序字段。
//
// Bundle 只能通过 Builder 构造，构造完成后不可修改。
// 子 bundle 与父 bundle 的字段处于不同的命名空间，读取父类字段需通过 Super()。
type Bundle struct {
	typeName EntityTypeName
	version  uint32
	super    *Bundle
	fields   []Field
	index    map[EntityName]int
}

func (b *Bundle) TypeName() EntityTypeName {
	return b.typeName
}

func (b *Bundle) Version() uint32 {
	return b.version
}

// Super 返回父类型的 bundle，不存在时为 nil。
func (b *Bundle) Super() *Bundle {
	return b.super
}

// Len 返回当前 bundle 自身的字段数，不含父 bundle。
func (b *Bundle) Len() int {
	return len(b.fields)
}

func (b *Bundle) Field(name EntityName) (Value, bool) {
	i, ok := b.index[name]
	if !ok {
		return Value{}, false
	}
	return b.fields[i].Value, true
}

func (b *Bundle) Has(name EntityName) bool {
	_, ok := b.index[name]
	return ok
}

// Fields 按写入顺序返回字段列表的副本。
func (b *Bundle) Fields() []Field {
	return append([]Field(nil), b.fields...)
}

// Range 按写入顺序遍历字段，fn 返回 false 时停止。
func (b *Bundle) Range(fn func(name EntityName, v Value) bool) {
	for _, f := range b.fields {
		if !fn(f.Name, f.Value) {
			return
		}
	}
}

// References 返回该 bundle 及其所有父 bundle 中的非空引用，按出现顺序排列。
func (b *Bundle) References() []EntityReference {
	var out []EntityReference
	for cur := b; cur != nil; cur = cur.super {
		for _, f := range cur.fields {
			out = append(out, f.Value.references()...)
		}
	}
	return out
}

// Equal 判断两个 bundle 的类型、版本、字段以及父 bundle 是否完全一致。
func (b *Bundle) Equal(o *Bundle) bool {
	if b == nil || o == nil {
		return b == o
	}
	if b.typeName != o.typeName || b.version != o.version || len(b.fields) != len(o.fields) {
		return false
	}
	for i := range b.fields {
		if b.fields[i].Name != o.fields[i].Name || !b.fields[i].Value.Equal(o.fields[i].Value) {
			return false
		}
	}
	return b.super.Equal(o.super)
}

// Builder 用于构造 Bundle。
//
// 字段只能写入一次；写入过程中的错误会被累积，由 Build 返回第一个错误。
// 由 Packer 创建的 Builder 可以把嵌套实体写成引用，NewBuilder 创建的则不行。
type Builder struct {
	typeName EntityTypeName
	version  uint32
	super    *Bundle
	fields   []Field
	index    map[EntityName]int
	packer   *Packer

	err    error
	result *Bundle
}

// NewBuilder 创建一个不关联 Packer 的 Builder。
func NewBuilder(typeName EntityTypeName, version uint32) *Builder {
	return newBuilder(typeName, version, nil)
}

func newBuilder(typeName EntityTypeName, version uint32, p *Packer) *Builder {
	b := &Builder{
		typeName: typeName,
		version:  version,
		index:    make(map[EntityName]int),
		packer:   p,
	}
	if typeName == "" {
		b.fail(merr.WrapErrParameterInvalidMsg("bundle: empty type name"))
	}
	return b
}

func (b *Builder) TypeName() EntityTypeName {
	return b.typeName
}

func (b *Builder) Version() uint32 {
	return b.version
}

// Err 返回目前累积的第一个错误。
func (b *Builder) Err() error {
	return b.err
}

func (b *Builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

// Fail 记录一个错误，Build 时返回。用于在自定义写入逻辑中报告失败。
func (b *Builder) Fail(err error) *Builder {
	if err != nil {
		b.fail(err)
	}
	return b
}

func (b *Builder) sealed() bool {
	if b.result != nil {
		b.fail(merr.WrapErrOperationNotSupported("modify built bundle", string(b.typeName)))
		return true
	}
	return false
}

// Set 写入一个字段。同名字段重复写入会记录 FieldReduplicate 错误。
func (b *Builder) Set(name EntityName, v Value) *Builder {
	if b.sealed() {
		return b
	}
	if name == "" {
		b.fail(merr.WrapErrParameterInvalidMsg("bundle: empty field name in %s", b.typeName))
		return b
	}
	if !v.IsValid() {
		b.fail(merr.WrapErrUnrepresentableField(string(name), "invalid value"))
		return b
	}
	if _, ok := b.index[name]; ok {
		b.fail(merr.WrapErrFieldReduplicate(string(name), string(b.typeName)))
		return b
	}
	b.index[name] = len(b.fields)
	b.fields = append(b.fields, Field{Name: name, Value: v})
	return b
}

// SetSuper 设置父类型的 bundle，最多调用一次。
func (b *Builder) SetSuper(super *Bundle) *Builder {
	if b.sealed() {
		return b
	}
	if super == nil {
		b.fail(merr.WrapErrParameterMissing("super", string(b.typeName)))
		return b
	}
	if b.super != nil {
		b.fail(merr.WrapErrFieldReduplicate("<super>", string(b.typeName)))
		return b
	}
	b.super = super
	return b
}

// reference 通过关联的 Packer 为实体分配（或查询）实例 ID。
func (b *Builder) reference(name EntityName, e Packable) (EntityReference, error) {
	if b.packer == nil {
		return EntityReference{}, merr.WrapErrUnrepresentableField(string(name),
			"nested entity requires a builder created by a packer")
	}
	return b.packer.Reference(e)
}

// Build 封存 Builder 并返回 Bundle。之后对 Builder 的写入都会失败。
func (b *Builder) Build() (*Bundle, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.result == nil {
		b.result = &Bundle{
			typeName: b.typeName,
			version:  b.version,
			super:    b.super,
			fields:   b.fields,
			index:    b.index,
		}
	}
	return b.result, nil
}
