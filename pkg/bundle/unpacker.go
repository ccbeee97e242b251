package bundle

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// slot 是会话 arena 中的一项。
type slot struct {
	id       InstanceID
	typeName EntityTypeName
	entity   Entity
}

// Unpacker 表示一次解包会话。
//
// 第一阶段按流顺序为每个 bundle 调用工厂构造实例，放入以索引寻址的 arena；
// 第二阶段按相同顺序调用 FinishUnpacking 完成引用装配。
// 两个阶段严格串行，第二阶段开始时所有实例都已存在，因此前向引用与环都是安全的。
type Unpacker struct {
	log.Binder

	session string
	opts    *options

	arena []slot
	index map[InstanceID]int

	// 第二阶段中第一个解析失败的错误。
	resolveErr error
}

// 编译期断言：确保 Unpacker 实现了 Resolver 接口。
var _ Resolver = (*Unpacker)(nil)

func newUnpacker(opts *options) *Unpacker {
	return &Unpacker{
		session: uuid.NewString(),
		opts:    opts,
	}
}

// Session 返回本次会话的唯一标识。
func (u *Unpacker) Session() string {
	return u.session
}

// Resolve 实现 Resolver 接口。
func (u *Unpacker) Resolve(ref EntityReference) (Entity, error) {
	if ref.IsNull() {
		return nil, nil
	}
	i, ok := u.index[ref.ID]
	if !ok {
		err := danglingReference(ref)
		u.recordResolveErr(err)
		return nil, err
	}
	s := u.arena[i]
	if ref.TypeName != "" && ref.TypeName != s.typeName {
		err := merr.WrapErrGraphInconsistent(
			fmt.Sprintf("reference %s points at an instance of type %s", ref, s.typeName))
		u.recordResolveErr(err)
		return nil, err
	}
	return s.entity, nil
}

func (u *Unpacker) recordResolveErr(err error) {
	if u.resolveErr == nil {
		u.resolveErr = err
	}
}

// instantiate 为第一阶段：查找工厂并构造所有实例。
func (u *Unpacker) instantiate(stream Stream) error {
	if len(stream) == 0 {
		return merr.WrapErrParameterInvalidMsg("bundle: empty stream")
	}
	if limit := u.opts.entityLimit; limit > 0 && len(stream) > limit {
		return merr.WrapErrParameterTooLarge("entities", fmt.Sprintf("stream holds %d entities, limit %d", len(stream), limit))
	}

	u.arena = make([]slot, 0, len(stream))
	u.index = make(map[InstanceID]int, len(stream))
	for i, rec := range stream {
		if rec.Bundle == nil {
			return merr.WrapErrGraphInconsistent(fmt.Sprintf("record %d has no bundle", i))
		}
		if rec.ID == NullID {
			return merr.WrapErrGraphInconsistent(fmt.Sprintf("record %d uses the null instance id", i))
		}
		if _, dup := u.index[rec.ID]; dup {
			return merr.WrapErrGraphInconsistent(fmt.Sprintf("instance id %d appears more than once", rec.ID))
		}

		typeName := rec.Bundle.TypeName()
		f, err := u.opts.registry.Lookup(typeName, rec.Bundle.Version())
		if err != nil {
			return err
		}
		e, err := construct(f, rec.Bundle)
		if err != nil {
			return errors.Wrapf(err, "unpack %s#%d", typeName, rec.ID)
		}

		u.index[rec.ID] = len(u.arena)
		u.arena = append(u.arena, slot{id: rec.ID, typeName: typeName, entity: e})
		metrics.UnpackedBundles.WithLabelValues(string(typeName)).Inc()
	}
	return nil
}

// finish 为第二阶段：按流顺序装配所有实例。
func (u *Unpacker) finish() error {
	for _, s := range u.arena {
		ok := u.finishOne(s)
		if u.resolveErr != nil {
			return errors.Wrapf(u.resolveErr, "finish %s#%d", s.typeName, s.id)
		}
		if !ok {
			return merr.WrapErrGraphInconsistent(fmt.Sprintf("%s#%d failed to finish unpacking", s.typeName, s.id))
		}
	}
	return nil
}

func (u *Unpacker) finishOne(s slot) (ok bool) {
	defer func() {
		if x := recover(); x != nil {
			u.Logger().Warn("finish unpacking panicked",
				log.FieldInstance(uint64(s.id)),
				log.FieldTypeName(string(s.typeName)),
				zap.Any("panic", x))
			ok = false
		}
	}()
	return s.entity.FinishUnpacking(u)
}

// construct 调用工厂，并把 panic 与空实例转换为 GraphInconsistent。
func construct(f Factory, b *Bundle) (e Entity, err error) {
	defer func() {
		if x := recover(); x != nil {
			e = nil
			err = merr.WrapErrGraphInconsistent(fmt.Sprintf("factory panicked: %v", x))
		}
	}()
	e, err = f.Construct(b)
	if err != nil {
		return nil, err
	}
	if isNil(e) {
		return nil, merr.WrapErrGraphInconsistent("factory returned a nil entity")
	}
	return e, nil
}

func danglingReference(ref EntityReference) error {
	if ref.TypeName == "" {
		return merr.WrapErrDanglingReference(uint64(ref.ID))
	}
	return merr.WrapErrDanglingReference(uint64(ref.ID), string(ref.TypeName))
}

func typeMismatch(ref EntityReference, got Entity, want reflect.Type) error {
	return merr.WrapErrGraphInconsistent(fmt.Sprintf("reference %s resolved to %T, want %v", ref, got, want))
}

// Graph 是解包完成后的对象图，按流顺序保存所有实例。
type Graph struct {
	arena []slot
	index map[InstanceID]int
}

// Root 返回流中第一个实例。
func (g *Graph) Root() Entity {
	return g.arena[0].entity
}

func (g *Graph) Len() int {
	return len(g.arena)
}

// Get 返回实例 ID 对应的实体。
func (g *Graph) Get(id InstanceID) (Entity, bool) {
	i, ok := g.index[id]
	if !ok {
		return nil, false
	}
	return g.arena[i].entity, true
}

// Entities 按流顺序返回所有实体。
func (g *Graph) Entities() []Entity {
	out := make([]Entity, len(g.arena))
	for i := range g.arena {
		out[i] = g.arena[i].entity
	}
	return out
}

// UnpackGraph 对 stream 执行两阶段解包并返回完整的对象图。
//
// 任一阶段失败都会使整个会话失败，不会返回部分装配的对象图。
func UnpackGraph(ctx context.Context, stream Stream, opts ...Option) (*Graph, error) {
	u := newUnpacker(newOptions(opts...))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "bundle.Unpack")
	defer span.End()
	span.SetAttributes(attribute.String("session", u.session), attribute.Int("records", len(stream)))

	u.SetLogger(log.Ctx(ctx).With(log.FieldSession(u.session), log.FieldComponent("unpacker")))

	start := time.Now()
	err := u.instantiate(stream)
	if err == nil {
		err = u.finish()
	}
	if err != nil {
		observeFailure(metrics.UnpackOpLabel, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		u.Logger().Warn("unpack failed", zap.Int("records", len(stream)), zap.Error(err))
		return nil, err
	}

	metrics.SessionLatency.WithLabelValues(metrics.UnpackOpLabel).
		Observe(float64(time.Since(start).Microseconds()) / 1000)
	u.Logger().Debug("unpack finished", zap.Int("entities", len(u.arena)), zap.Duration("cost", time.Since(start)))
	return &Graph{arena: u.arena, index: u.index}, nil
}

// Unpack 对 stream 执行两阶段解包，返回第一个 bundle 对应的根实体。
func Unpack(ctx context.Context, stream Stream, opts ...Option) (Entity, error) {
	g, err := UnpackGraph(ctx, stream, opts...)
	if err != nil {
		return nil, err
	}
	return g.Root(), nil
}

// UnpackAs 与 Unpack 相同，并把根实体断言为 T。
func UnpackAs[T any](ctx context.Context, stream Stream, opts ...Option) (T, error) {
	var zero T
	root, err := Unpack(ctx, stream, opts...)
	if err != nil {
		return zero, err
	}
	t, ok := root.(T)
	if !ok {
		return zero, merr.WrapErrGraphInconsistent(
			fmt.Sprintf("root is %T, want %v", root, reflect.TypeFor[T]()))
	}
	return t, nil
}
