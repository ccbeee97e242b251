package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/log"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/serializer"
)

type inspectOptions struct {
	*rootOptions
	summary bool
}

func newInspectCmd(root *rootOptions) *cobra.Command {
	opts := &inspectOptions{rootOptions: root}
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Print the frames of a bundle stream file",
		Long: `Print every frame header followed by its records, one JSON document per line.
With --summary only the header and the per-type record counts are printed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, span := opts.commandContext(cmd)
			defer span.End()
			if err := opts.run(cmd.OutOrStdout(), args[0]); err != nil {
				log.Ctx(ctx).Warn("inspect failed", zap.String("path", args[0]), zap.Error(err))
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.summary, "summary", false, "print only headers and type counts")
	return cmd
}

func (o *inspectOptions) run(out io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	lines := serializer.JSONLinesSerializer{}
	r := bufio.NewReader(f)
	for idx := 0; ; idx++ {
		header, plain, err := o.app.Codec().DecodeRaw(r)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("frame %d: %w", idx, err)
		}

		ser, err := serializer.Get(header.Serializer)
		if err != nil {
			return fmt.Errorf("frame %d: %w", idx, err)
		}
		s, err := ser.Unmarshal(plain)
		if err != nil {
			return fmt.Errorf("frame %d: %w", idx, err)
		}

		fmt.Fprintf(out, "# frame %d format=%s serializer=%s flags=%d records=%d size=%d\n",
			idx, header.FormatVersion, header.Serializer, header.Flags, header.Records, header.Size)

		if o.summary {
			counts := s.TypeCounts()
			for _, name := range sortedKeys(counts) {
				fmt.Fprintf(out, "%s\t%d\n", name, counts[name])
			}
			continue
		}

		data, err := lines.Marshal(s)
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
	}
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
