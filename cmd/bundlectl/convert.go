package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/codec"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

type convertOptions struct {
	*rootOptions
	serializer  string
	compression string
	encryption  string
}

func newConvertCmd(root *rootOptions) *cobra.Command {
	opts := &convertOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "convert <in> <out>",
		Short: "Re-encode a bundle stream file with another serializer or pipeline",
		Long: `Decode every frame of <in> with the configured codec and write it to <out>.
Flags left empty keep the configured value.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, span := opts.commandContext(cmd)
			defer span.End()
			n, err := opts.run(args[0], args[1])
			if err != nil {
				log.Ctx(ctx).Warn("convert failed",
					zap.String("in", args[0]), zap.String("out", args[1]), zap.Int("frames", n), zap.Error(err))
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "converted %d frames to %s\n", n, args[1])
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.serializer, "to", "", "target serializer (json, jsonl, proto)")
	cmd.Flags().StringVar(&opts.compression, "compression", "", "target compression (none, zstd)")
	cmd.Flags().StringVar(&opts.encryption, "encryption", "", "target encryption (none, aes-gcm-hmac, chacha20poly1305)")
	return cmd
}

func (o *convertOptions) target() (codec.Codec, error) {
	cfg := o.app.CodecConfig()
	if o.serializer != "" {
		cfg.Serializer = o.serializer
	}
	if o.compression != "" {
		cfg.Compression = o.compression
	}
	if o.encryption != "" {
		cfg.Encryption = o.encryption
	}
	return codec.NewFromConfig(cfg)
}

// run 将 in 的每一帧用目标编解码器写入 out，失败时不保留 out。
func (o *convertOptions) run(in, out string) (int, error) {
	same, err := samePath(in, out)
	if err != nil {
		return 0, err
	}
	if same {
		return 0, merr.WrapErrParameterInvalidMsg("convert: input and output are the same file %s", in)
	}
	dst, err := o.target()
	if err != nil {
		return 0, err
	}

	src, err := os.Open(in)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	f, err := os.Create(out)
	if err != nil {
		return 0, err
	}
	w := bufio.NewWriter(f)

	frames := 0
	err = decodeFrames(o.app.Codec(), src, func(_ int, s bundle.Stream) error {
		frames++
		return dst.Encode(w, s)
	})
	if err == nil {
		err = w.Flush()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(out)
	}
	return frames, err
}

// samePath 判断两个路径是否指向同一文件，链接也视为同一文件。
func samePath(a, b string) (bool, error) {
	absA, err := filepath.Abs(a)
	if err != nil {
		return false, err
	}
	absB, err := filepath.Abs(b)
	if err != nil {
		return false, err
	}
	if absA == absB {
		return true, nil
	}
	sa, errA := os.Stat(absA)
	sb, errB := os.Stat(absB)
	return errA == nil && errB == nil && os.SameFile(sa, sb), nil
}
