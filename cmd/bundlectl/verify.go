package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/hardware"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

type verifyResult struct {
	frames  int
	records int
	err     error
}

func newVerifyCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>...",
		Short: "Check that every frame decodes into a closed, well-formed bundle stream",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, span := root.commandContext(cmd)
			defer span.End()
			return runVerify(ctx, root, cmd.OutOrStdout(), args)
		},
	}
}

func runVerify(ctx context.Context, root *rootOptions, out io.Writer, paths []string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	lg := log.Ctx(ctx).WithRateGroup("bundlectl.verify", 1, 10)
	results := make([]verifyResult, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(hardware.GetCPUNum())
	for i, path := range paths {
		g.Go(func() error {
			results[i] = verifyFile(ctx, root, path)
			return nil
		})
	}
	_ = g.Wait()

	var failed []error
	for i, res := range results {
		if res.err != nil {
			fmt.Fprintf(out, "FAIL\t%s\t%v\n", paths[i], res.err)
			lg.RatedWarn(1, "verify failed", zap.String("path", paths[i]), zap.Int("frames", res.frames), zap.Error(res.err))
			failed = append(failed, fmt.Errorf("%s: %w", paths[i], res.err))
			continue
		}
		fmt.Fprintf(out, "ok\t%s\tframes=%d records=%d\n", paths[i], res.frames, res.records)
	}
	if len(failed) > 0 {
		return merr.Combine(failed...)
	}
	return nil
}

func verifyFile(ctx context.Context, root *rootOptions, path string) verifyResult {
	var res verifyResult
	res.err = readFrames(root.app.Codec(), path, func(idx int, s bundle.Stream) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := bundle.Verify(s); err != nil {
			return fmt.Errorf("frame %d: %w", idx, err)
		}
		res.frames++
		res.records += len(s)
		return nil
	})
	return res
}
