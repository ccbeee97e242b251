package bundle

import (
	"context"

	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/conc"
)

// 批量会话失败告警的限流分组：每秒补充 1 条，最多积攒 5 条。
const (
	batchRateGroup  = "bundle.batch"
	batchRateCredit = 1
	batchRateBurst  = 5
)

func batchLogger(ctx context.Context) *log.MLogger {
	return log.Ctx(ctx).WithRateGroup(batchRateGroup, batchRateCredit, batchRateBurst)
}

// PackAll 并发打包多个互不相关的对象图，每个根对应一个独立会话。
//
// 结果与 roots 顺序一致；任一会话失败时返回按输入顺序遇到的第一个错误。
func PackAll(ctx context.Context, roots []Packable, opts ...Option) ([]Stream, error) {
	o := newOptions(opts...)
	pool := conc.NewPool[Stream](o.parallelism)
	defer pool.Release()

	lg := batchLogger(ctx)
	futures := make([]*conc.Future[Stream], 0, len(roots))
	for i, root := range roots {
		futures = append(futures, pool.Submit(func() (Stream, error) {
			s, err := Pack(ctx, root, opts...)
			if err != nil {
				lg.RatedWarn(1, "batch session failed", zap.String("op", "pack"), zap.Int("index", i), zap.Error(err))
			}
			return s, err
		}))
	}
	if err := conc.AwaitAll(futures...); err != nil {
		return nil, err
	}

	out := make([]Stream, len(futures))
	for i, f := range futures {
		out[i] = f.Value()
	}
	return out, nil
}

// UnpackAll 并发解包多个 bundle 流，返回各自的根实体，顺序与 streams 一致。
//
// 注册表在各会话之间共享，查找只持有读锁。
func UnpackAll(ctx context.Context, streams []Stream, opts ...Option) ([]Entity, error) {
	o := newOptions(opts...)
	pool := conc.NewPool[Entity](o.parallelism)
	defer pool.Release()

	lg := batchLogger(ctx)
	futures := make([]*conc.Future[Entity], 0, len(streams))
	for i, stream := range streams {
		futures = append(futures, pool.Submit(func() (Entity, error) {
			e, err := Unpack(ctx, stream, opts...)
			if err != nil {
				lg.RatedWarn(1, "batch session failed", zap.String("op", "unpack"), zap.Int("index", i), zap.Error(err))
			}
			return e, err
		}))
	}
	if err := conc.AwaitAll(futures...); err != nil {
		return nil, err
	}

	out := make([]Entity, len(futures))
	for i, f := range futures {
		out[i] = f.Value()
	}
	return out, nil
}
