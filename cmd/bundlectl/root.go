package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/lk2023060901/danmu-garden-bundle/application"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/codec"
)

const moduleName = "bundlectl"

type rootOptions struct {
	configPath string
	app        *application.Application
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "bundlectl",
		Short:         "Inspect, verify and convert entity bundle streams",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var args []string
			if opts.configPath != "" {
				args = []string{"--config", opts.configPath}
			}
			opts.app = application.New()
			return opts.app.Run(args)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is ./config.yaml)")

	cmd.AddCommand(newInspectCmd(opts))
	cmd.AddCommand(newVerifyCmd(opts))
	cmd.AddCommand(newConvertCmd(opts))
	return cmd
}

// commandContext 为子命令开启一个 intent span，返回的上下文携带模块 logger。
// 调用方负责结束 span。
func (o *rootOptions) commandContext(cmd *cobra.Command) (context.Context, trace.Span) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = o.app.WithModule(ctx, moduleName)
	return log.NewIntentContext(ctx, moduleName, cmd.Name())
}

// readFrames 依次解码文件中的每一帧，fn 返回错误时停止。
func readFrames(c codec.Codec, path string, fn func(idx int, s bundle.Stream) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return decodeFrames(c, f, fn)
}

func decodeFrames(c codec.Codec, src io.Reader, fn func(idx int, s bundle.Stream) error) error {
	r := bufio.NewReader(src)
	for idx := 0; ; idx++ {
		s, err := c.Decode(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", idx, err)
		}
		if err := fn(idx, s); err != nil {
			return err
		}
	}
}
