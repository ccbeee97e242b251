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

const tracerName = "bundle"

// Packer 表示一次打包会话。
//
// 它以广度优先的顺序遍历对象图：对象第一次被引用时立即分配实例 ID 并进入待处理队列，
// 因此每个对象只会被打包一次，且根对象总是第一个输出。
// Packer 不是并发安全的，一个会话只应在单个 goroutine 中使用。
type Packer struct {
	log.Binder

	session string
	opts    *options

	ids   map[Packable]InstanceID
	queue []Packable
	next  InstanceID
}

func newPacker(opts *options) *Packer {
	return &Packer{
		session: uuid.NewString(),
		opts:    opts,
		ids:     make(map[Packable]InstanceID),
		next:    NullID + 1,
	}
}

// Session 返回本次会话的唯一标识，用于日志关联。
func (p *Packer) Session() string {
	return p.session
}

// NewBuilder 创建一个关联到本会话的 Builder，可以把嵌套实体写成引用。
func (p *Packer) NewBuilder(typeName EntityTypeName, version uint32) *Builder {
	return newBuilder(typeName, version, p)
}

// Reference 返回 e 在本会话中的引用。
//
// e 尚未被访问时立即为其分配实例 ID 并排入队列，等待后续打包；e 为 nil 时返回空引用。
func (p *Packer) Reference(e Packable) (EntityReference, error) {
	if isNil(e) {
		return EntityReference{}, nil
	}
	typ := reflect.TypeOf(e)
	if !typ.Comparable() {
		return EntityReference{}, merr.WrapErrUnrepresentableField(string(e.EntityTypeName()),
			fmt.Sprintf("entity of type %s has no identity", typ))
	}
	if id, ok := p.ids[e]; ok {
		return EntityReference{ID: id, TypeName: e.EntityTypeName()}, nil
	}
	if p.opts.entityLimit > 0 && len(p.queue) >= p.opts.entityLimit {
		return EntityReference{}, merr.WrapErrParameterTooLarge("entities",
			fmt.Sprintf("session exceeds %d entities", p.opts.entityLimit))
	}

	id := p.next
	p.next++
	p.ids[e] = id
	p.queue = append(p.queue, e)
	return EntityReference{ID: id, TypeName: e.EntityTypeName()}, nil
}

// IDOf 返回已分配给 e 的实例 ID。
func (p *Packer) IDOf(e Packable) (InstanceID, bool) {
	if isNil(e) || !reflect.TypeOf(e).Comparable() {
		return NullID, false
	}
	id, ok := p.ids[e]
	return id, ok
}

// Len 返回本会话目前已分配 ID 的实体数。
func (p *Packer) Len() int {
	return len(p.queue)
}

func (p *Packer) run(root Packable) (Stream, error) {
	if isNil(root) {
		return nil, merr.WrapErrParameterMissing("root")
	}
	if _, err := p.Reference(root); err != nil {
		return nil, err
	}

	// 队列会在打包过程中增长，按索引遍历。
	stream := make(Stream, 0, len(p.queue))
	for i := 0; i < len(p.queue); i++ {
		e := p.queue[i]
		id := p.ids[e]

		b, err := p.bundleOf(e)
		if err != nil {
			return nil, errors.Wrapf(err, "pack %s#%d", e.EntityTypeName(), id)
		}
		stream = append(stream, Record{ID: id, Bundle: b})
		metrics.PackedBundles.WithLabelValues(string(b.TypeName())).Inc()
		p.Logger().Debug("entity packed",
			log.FieldInstance(uint64(id)),
			log.FieldTypeName(string(b.TypeName())),
			zap.Int("fields", b.Len()))
	}
	return stream, nil
}

// bundleOf 调用实体的 BundleSelf，并把 panic 转换为 UnrepresentableField。
func (p *Packer) bundleOf(e Packable) (b *Bundle, err error) {
	typeName := e.EntityTypeName()
	defer func() {
		if x := recover(); x != nil {
			b = nil
			err = merr.WrapErrUnrepresentableField(string(typeName), fmt.Sprintf("panic while bundling: %v", x))
		}
	}()

	b, err = e.BundleSelf(p)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, merr.WrapErrUnrepresentableField(string(typeName), "entity produced a nil bundle")
	}
	if b.TypeName() != typeName {
		return nil, merr.WrapErrUnrepresentableField(string(typeName),
			fmt.Sprintf("bundle type %s does not match entity type", b.TypeName()))
	}
	return b, nil
}

// Pack 从 root 出发打包整个对象图，返回以 root 为首的 bundle 流。
//
// 每次调用都是一个独立的会话，会话状态在返回后即被丢弃。
func Pack(ctx context.Context, root Packable, opts ...Option) (Stream, error) {
	p := newPacker(newOptions(opts...))

	ctx, span := otel.Tracer(tracerName).Start(ctx, "bundle.Pack")
	defer span.End()
	span.SetAttributes(attribute.String("session", p.session))

	p.SetLogger(log.Ctx(ctx).With(log.FieldSession(p.session), log.FieldComponent("packer")))

	start := time.Now()
	stream, err := p.run(root)
	if err != nil {
		observeFailure(metrics.PackOpLabel, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.Logger().Warn("pack failed", zap.Int("entities", p.Len()), zap.Error(err))
		return nil, err
	}

	metrics.SessionLatency.WithLabelValues(metrics.PackOpLabel).
		Observe(float64(time.Since(start).Microseconds()) / 1000)
	span.SetAttributes(attribute.Int("entities", len(stream)))
	p.Logger().Debug("pack finished", zap.Int("entities", len(stream)), zap.Duration("cost", time.Since(start)))
	return stream, nil
}

func observeFailure(op string, err error) {
	metrics.SessionFailures.WithLabelValues(op, fmt.Sprint(merr.Code(err))).Inc()
}
