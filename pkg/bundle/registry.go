package bundle

import (
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// ConstructFunc 根据 bundle 构造一个（可能尚未装配完成的）实体。
//
// 实现只能使用标量字段完成构造，引用字段必须原样保存，不得在此解析。
type ConstructFunc func(b *Bundle) (Entity, error)

// Factory 描述某个类型的重建逻辑及其支持的版本区间 [Oldest, Newest]。
type Factory struct {
	Oldest    uint32
	Newest    uint32
	Construct ConstructFunc
}

// Supports 判断 version 是否位于支持区间内。
func (f Factory) Supports(version uint32) bool {
	return f.Oldest <= version && version <= f.Newest
}

func (f Factory) validate(name EntityTypeName) error {
	if name == "" {
		return merr.WrapErrParameterInvalidMsg("registry: empty type name")
	}
	if f.Construct == nil {
		return merr.WrapErrParameterInvalidMsg("registry: nil constructor for type %s", name)
	}
	if f.Oldest > f.Newest {
		return merr.WrapErrParameterInvalidMsg("registry: invalid version range [%d, %d] for type %s",
			f.Oldest, f.Newest, name)
	}
	return nil
}

// Registry 维护类型名到工厂的映射。
//
// 注册通常只发生在启动阶段，查找是只读操作，因此使用读写锁保护；
// Seal 之后拒绝新的注册。
type Registry struct {
	mu        sync.RWMutex
	factories map[EntityTypeName]Factory
	sealed    bool
}

// NewRegistry 创建一个空的注册表。
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[EntityTypeName]Factory),
	}
}

// Register 为 name 注册工厂。同名重复注册返回 DuplicateTypeName。
func (r *Registry) Register(name EntityTypeName, f Factory) error {
	if err := f.validate(name); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return merr.WrapErrRegistrySealed(string(name))
	}
	if _, exists := r.factories[name]; exists {
		return merr.WrapErrDuplicateTypeName(string(name))
	}
	r.factories[name] = f
	log.Debug("entity factory registered",
		log.FieldTypeName(string(name)),
		zap.Uint32("oldest", f.Oldest),
		zap.Uint32("newest", f.Newest))
	return nil
}

// MustRegister 与 Register 相同，但失败时 panic，适合在 init 中使用。
func (r *Registry) MustRegister(name EntityTypeName, f Factory) {
	if err := r.Register(name, f); err != nil {
		panic(err)
	}
}

// Lookup 返回支持 (name, version) 的工厂。
//
// 未注册的类型返回 UnknownType，版本不在区间内返回 UnsupportedVersion。
func (r *Registry) Lookup(name EntityTypeName, version uint32) (Factory, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return Factory{}, merr.WrapErrUnknownType(string(name))
	}
	if !f.Supports(version) {
		return Factory{}, merr.WrapErrUnsupportedVersion(string(name), version, f.Oldest, f.Newest)
	}
	return f, nil
}

// Seal 冻结注册表，之后的 Register 返回 RegistrySealed。
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Names 返回已注册的类型名，按字典序排列。
func (r *Registry) Names() []EntityTypeName {
	r.mu.RLock()
	names := lo.Keys(r.factories)
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// defaultRegistry 是进程级的注册表，只用于启动期的静态注册。
var defaultRegistry = NewRegistry()

// Default 返回进程级注册表。
func Default() *Registry {
	return defaultRegistry
}

// Register 向进程级注册表注册工厂。
func Register(name EntityTypeName, f Factory) error {
	return defaultRegistry.Register(name, f)
}

// MustRegister 向进程级注册表注册工厂，失败时 panic。
func MustRegister(name EntityTypeName, f Factory) {
	defaultRegistry.MustRegister(name, f)
}

// Lookup 在进程级注册表中查找工厂。
func Lookup(name EntityTypeName, version uint32) (Factory, error) {
	return defaultRegistry.Lookup(name, version)
}
