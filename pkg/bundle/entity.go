package bundle

import "reflect"

// Packable 是参与打包的实体需要实现的能力。
type Packable interface {
	// EntityTypeName 返回稳定的类型名，必须与注册表中的工厂一致。
	EntityTypeName() EntityTypeName

	// BundleSelf 以当前 schema 版本生成自身的 Bundle。
	//
	// 实现应通过 p.NewBuilder 创建 Builder，嵌套实体经由 Ref/RefList 写成引用。
	BundleSelf(p *Packer) (*Bundle, error)
}

// Unpackable 是参与解包第二阶段的实体需要实现的能力。
type Unpackable interface {
	// FinishUnpacking 使用 r 将第一阶段保存的引用解析为实际对象。
	// 返回 false 表示实体无法完成装配，整个会话将以 GraphInconsistent 失败。
	FinishUnpacking(r Resolver) bool
}

// Entity 同时具备打包与解包能力，是工厂构造的返回类型。
type Entity interface {
	Packable
	Unpackable
}

// Resolver 在解包第二阶段把 EntityReference 映射为会话内的实体。
type Resolver interface {
	// Resolve 返回 ref 对应的实体。空引用返回 (nil, nil)。
	Resolve(ref EntityReference) (Entity, error)
}

// ResolveAs 解析 ref 并断言为具体类型 T。空引用返回 T 的零值。
func ResolveAs[T any](r Resolver, ref EntityReference) (T, error) {
	var zero T
	e, err := r.Resolve(ref)
	if err != nil || e == nil {
		return zero, err
	}
	t, ok := e.(T)
	if !ok {
		return zero, typeMismatch(ref, e, reflect.TypeFor[T]())
	}
	return t, nil
}

// ResolveAll 按顺序解析 refs；空引用对应位置为 T 的零值。
func ResolveAll[T any](r Resolver, refs []EntityReference) ([]T, error) {
	out := make([]T, len(refs))
	for i, ref := range refs {
		t, err := ResolveAs[T](r, ref)
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

// AsPackables 将具体类型的切片转换为 []Packable，便于写入 RefList。
func AsPackables[T Packable](items []T) []Packable {
	out := make([]Packable, len(items))
	for i := range items {
		out[i] = items[i]
	}
	return out
}
