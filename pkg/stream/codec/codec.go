package codec

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/blang/semver/v4"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/metrics"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/compressor"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/crypto"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/framer"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/serializer"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// FormatVersion 为当前写出的编码格式版本。
const FormatVersion = "1.0.0"

// supportedFormats 为可以读取的格式版本区间，主版本变化表示不兼容。
var supportedFormats = semver.MustParseRange(">=1.0.0 <2.0.0")

const (
	FlagCompressed uint64 = 1 << 0
	FlagEncrypted  uint64 = 1 << 1
)

// Codec 抽象了“从 bundle 流到字节帧，以及从字节帧回到 bundle 流”的完整编解码流程。
//
// Pipeline（写出 Encode）：
//
//	stream --> serializer --> [compress?] --> [encrypt?] --> Envelope{Header+Payload} --> framer.WriteFrame
//
// Pipeline（读入 Decode）：
//
//	framer.ReadFrame --> Envelope{Header+Payload} --> [decrypt?] --> [decompress?] --> serializer --> stream
type Codec interface {
	// Encode 将 bundle 流编码为一帧并写入 w。
	Encode(w io.Writer, s bundle.Stream) error

	// Decode 从 r 中读取一帧并解码为 bundle 流。
	//
	// 序列化格式以帧头中记录的为准，因此可以读取由其它格式写出的帧。
	// r 在帧边界处正常结束时返回 io.EOF。
	Decode(r io.Reader) (bundle.Stream, error)

	// DecodeRaw 读取一帧并返回帧头与已完成解密/解压的明文字节，不做反序列化。
	DecodeRaw(r io.Reader) (*framer.Header, []byte, error)
}

// Options 用于构造 Codec 的依赖注入参数。
type Options struct {
	Framer     framer.Framer         // 允许为 nil（内部会用默认大小的 LengthPrefixedFramer）
	Serializer serializer.Serializer // 写出时使用的序列化格式
	Compressor compressor.Compressor // 允许为 nil（内部会用 NopCompressor）
	Encryptor  crypto.Encryptor      // 允许为 nil（内部会用 NopEncryptor）

	EnableCompression bool // 是否启用压缩（影响压缩行为与 Header.Flags）
	EnableEncryption  bool // 是否启用加密（影响加密行为与 Header.Flags）
}

type codec struct {
	framer     framer.Framer
	serializer serializer.Serializer
	compressor compressor.Compressor
	encryptor  crypto.Encryptor

	compress bool
	encrypt  bool
}

var _ Codec = (*codec)(nil)

// New 创建一个基于给定依赖的 Codec。
func New(opts Options) (Codec, error) {
	if opts.Serializer == nil {
		return nil, merr.WrapErrParameterMissing("serializer")
	}

	c := &codec{
		framer:     opts.Framer,
		serializer: opts.Serializer,
		compressor: opts.Compressor,
		encryptor:  opts.Encryptor,
		compress:   opts.EnableCompression,
		encrypt:    opts.EnableEncryption,
	}
	if c.framer == nil {
		c.framer = framer.NewLengthPrefixedFramer(0)
	}
	if c.compressor == nil {
		c.compressor = compressor.NopCompressor{}
	}
	if c.encryptor == nil {
		c.encryptor = crypto.NopEncryptor{}
	}
	return c, nil
}

// Encode 实现 Codec.Encode。
func (c *codec) Encode(w io.Writer, s bundle.Stream) error {
	if w == nil {
		return merr.WrapErrParameterMissing("writer")
	}

	// 第一步：bundle 流序列化。
	body, err := c.serializer.Marshal(s)
	if err != nil {
		return fmt.Errorf("codec: marshal failed: %w", err)
	}

	header := &framer.Header{
		FormatVersion: FormatVersion,
		Serializer:    c.serializer.Name(),
		Records:       uint32(len(s)),
	}

	// 第二步：可选压缩。
	if c.compress && len(body) > 0 && len(body) >= minCompressSize(c.compressor) {
		compressed, err := c.compressor.Compress(nil, body)
		if err != nil {
			return fmt.Errorf("codec: compress failed: %w", err)
		}
		body = compressed
		header.Flags |= FlagCompressed
	}

	// 第三步：可选加密。
	if c.encrypt && len(body) > 0 {
		header.Flags |= FlagEncrypted
		packet, err := c.encryptor.Encrypt(body, buildAAD(header))
		if err != nil {
			return fmt.Errorf("codec: encrypt failed: %w", err)
		}
		body = packet
	}

	env := &framer.Envelope{
		Header:  header,
		Payload: body,
	}
	if err := c.framer.WriteFrame(w, env); err != nil {
		return fmt.Errorf("codec: write frame failed: %w", err)
	}
	metrics.StreamBytes.WithLabelValues(metrics.EncodeOpLabel, header.Serializer).Observe(float64(len(body)))
	return nil
}

// decodeFrame 完成从底层流到“帧头 + 明文字节”的解码流程。
func (c *codec) decodeFrame(r io.Reader) (*framer.Header, []byte, error) {
	if r == nil {
		return nil, nil, merr.WrapErrParameterMissing("reader")
	}

	env, err := c.framer.ReadFrame(r)
	if err != nil {
		if err == io.EOF {
			return nil, nil, io.EOF
		}
		return nil, nil, fmt.Errorf("codec: read frame failed: %w", err)
	}

	header := env.Header
	if header == nil {
		return nil, nil, merr.WrapErrStreamCorrupted("frame has no header")
	}
	if err := checkFormatVersion(header.FormatVersion); err != nil {
		return nil, nil, err
	}

	data := env.Payload
	metrics.StreamBytes.WithLabelValues(metrics.DecodeOpLabel, header.Serializer).Observe(float64(len(data)))

	// 第一阶段：加密 -> 解密。
	if header.Flags&FlagEncrypted != 0 {
		if !c.encrypt {
			return nil, nil, merr.WrapErrOperationNotSupported("decrypt", "encrypted payload but encryption disabled")
		}
		plain, err := c.encryptor.Decrypt(data, buildAAD(header))
		if err != nil {
			return nil, nil, merr.WrapErrStreamCorrupted("decrypt failed: " + err.Error())
		}
		data = plain
	}

	// 第二阶段：压缩 -> 解压。
	if header.Flags&FlagCompressed != 0 {
		if !c.compress {
			return nil, nil, merr.WrapErrOperationNotSupported("decompress", "compressed payload but compression disabled")
		}
		plain, err := c.compressor.Decompress(nil, data)
		if err != nil {
			return nil, nil, merr.WrapErrStreamCorrupted("decompress failed: " + err.Error())
		}
		data = plain
	}

	return header, data, nil
}

// DecodeRaw 实现 Codec.DecodeRaw。
func (c *codec) DecodeRaw(r io.Reader) (*framer.Header, []byte, error) {
	return c.decodeFrame(r)
}

// Decode 实现 Codec.Decode。
func (c *codec) Decode(r io.Reader) (bundle.Stream, error) {
	header, data, err := c.decodeFrame(r)
	if err != nil {
		return nil, err
	}

	ser := c.serializer
	if header.Serializer != ser.Name() {
		if ser, err = serializer.Get(header.Serializer); err != nil {
			return nil, err
		}
	}

	// 第三阶段：反序列化为 bundle 流。
	s, err := ser.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(s)) != header.Records {
		return nil, merr.WrapErrStreamCorrupted(
			fmt.Sprintf("header declares %d records, payload holds %d", header.Records, len(s)))
	}
	return s, nil
}

// minCompressSize 返回压缩器声明的最小压缩阈值，低于阈值的负载不压缩也不置位。
func minCompressSize(c compressor.Compressor) int {
	if m, ok := c.(interface{ MinCompressSize() int }); ok {
		return m.MinCompressSize()
	}
	return 0
}

func checkFormatVersion(v string) error {
	parsed, err := semver.Parse(v)
	if err != nil {
		return merr.WrapErrStreamFormatUnsupported(v, supportedFormatsDesc)
	}
	if !supportedFormats(parsed) {
		return merr.WrapErrStreamFormatUnsupported(v, supportedFormatsDesc)
	}
	return nil
}

const supportedFormatsDesc = ">=1.0.0 <2.0.0"

// buildAAD 将帧头中与完整性相关的字段编码为 AAD。
//
// 约定：AAD 字段顺序为：
//
//	len(format)(uint16) | format | len(serializer)(uint16) | serializer | flags(uint64) | records(uint32)
//
// 注意：此处不包含 size 字段，避免与“payload 最终长度”的定义产生循环依赖。
func buildAAD(h *framer.Header) []byte {
	buf := make([]byte, 0, 2+len(h.FormatVersion)+2+len(h.Serializer)+12)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.FormatVersion)))
	buf = append(buf, h.FormatVersion...)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.Serializer)))
	buf = append(buf, h.Serializer...)
	buf = binary.BigEndian.AppendUint64(buf, h.Flags)
	buf = binary.BigEndian.AppendUint32(buf, h.Records)
	return buf
}
