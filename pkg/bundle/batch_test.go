package bundle

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

func TestPackUnpackAll(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry()

	roots := make([]Packable, 0, 8)
	for i := 0; i < 8; i++ {
		a := &Node{Name: fmt.Sprintf("a%d", i)}
		a.Next = &Node{Name: fmt.Sprintf("b%d", i), Next: a}
		roots = append(roots, a)
	}

	streams, err := PackAll(ctx, roots, WithParallelism(3))
	require.NoError(t, err)
	require.Len(t, streams, len(roots))

	entities, err := UnpackAll(ctx, streams, WithRegistry(registry), WithParallelism(3))
	require.NoError(t, err)
	require.Len(t, entities, len(roots))
	for i, e := range entities {
		n := e.(*Node)
		assert.Equal(t, fmt.Sprintf("a%d", i), n.Name)
		assert.Same(t, n, n.Next.Next)
	}
}

func TestPackAllFailure(t *testing.T) {
	roots := []Packable{&Node{Name: "ok"}, &Scene{}}
	_, err := PackAll(context.Background(), roots)
	assert.ErrorIs(t, err, merr.ErrMissingMandatoryField)

	streams := []Stream{{record(1, "Gizmo", 1)}}
	_, err = UnpackAll(context.Background(), streams, WithRegistry(newTestRegistry()))
	assert.ErrorIs(t, err, merr.ErrUnknownType)
}

func TestBatchFailuresRateLimited(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	ctx := context.WithValue(context.Background(), log.CtxLogKey, &log.MLogger{Logger: zap.New(core)})

	const n = 20
	roots := make([]Packable, 0, n)
	streams := make([]Stream, 0, n)
	for i := 0; i < n; i++ {
		roots = append(roots, &Scene{})
		streams = append(streams, Stream{record(1, "Gizmo", 1)})
	}
	_, err := PackAll(ctx, roots, WithParallelism(4))
	assert.ErrorIs(t, err, merr.ErrMissingMandatoryField)
	_, err = UnpackAll(ctx, streams, WithRegistry(newTestRegistry()), WithParallelism(4))
	assert.ErrorIs(t, err, merr.ErrUnknownType)

	failed := logs.FilterMessage("batch session failed").All()
	assert.LessOrEqual(t, len(failed), batchRateBurst+1)
	for _, entry := range failed {
		assert.Contains(t, entry.ContextMap(), "index")
		assert.Contains(t, []any{"pack", "unpack"}, entry.ContextMap()["op"])
	}
}
