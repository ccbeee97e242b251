package framer

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// Framer 抽象了基于 Envelope 的打包/解包能力。
//
// 约定：
//   - 一帧数据的格式为：4 字节大端无符号整型（表示后续 Envelope 序列化后的长度）+ Envelope 二进制数据。
//   - Envelope 使用 protobuf 线格式编码。
type Framer interface {
	// WriteFrame 将 Envelope 打包为一帧并写入到 w 中。
	WriteFrame(w io.Writer, env *Envelope) error

	// ReadFrame 从 r 中读取一帧数据并解包为 Envelope。
	//
	// 流在帧边界处正常结束时返回 io.EOF。
	ReadFrame(r io.Reader) (*Envelope, error)
}

// LengthPrefixedFramer 使用长度前缀（4 字节大端）作为帧边界，适用于文件与字节流。
type LengthPrefixedFramer struct {
	// MaxFrameSize 为允许的最大帧大小（Envelope 序列化后长度），单位字节。
	// 为 0 时使用默认值 DefaultMaxFrameSize。
	MaxFrameSize uint32
}

// DefaultMaxFrameSize 为默认的最大帧大小。
const DefaultMaxFrameSize uint32 = 64 * 1024 * 1024 // 64MB

// 编译期断言：确保 LengthPrefixedFramer 实现了 Framer 接口。
var _ Framer = (*LengthPrefixedFramer)(nil)

// NewLengthPrefixedFramer 创建一个长度前缀帧编码器，maxFrameSize 为 0 时使用默认值。
func NewLengthPrefixedFramer(maxFrameSize uint32) *LengthPrefixedFramer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &LengthPrefixedFramer{
		MaxFrameSize: maxFrameSize,
	}
}

// WriteFrame 将 Envelope 编码为长度前缀帧并写入。
func (f *LengthPrefixedFramer) WriteFrame(w io.Writer, env *Envelope) error {
	if env == nil {
		return merr.WrapErrParameterMissing("envelope")
	}

	// 自动修正 size 字段，保证与 payload 长度一致。
	if env.Header != nil {
		env.Header.Size = uint32(len(env.Payload))
	}

	body, err := marshalEnvelope(env)
	if err != nil {
		return fmt.Errorf("framer: marshal envelope failed: %w", err)
	}

	length := uint32(len(body))
	if length > f.effectiveMaxSize() {
		return merr.WrapErrFrameTooLarge(length, f.effectiveMaxSize())
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], length)

	if _, err := w.Write(header[:]); err != nil {
		return merr.WrapErrIoFailed("frame header", err)
	}
	if length == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return merr.WrapErrIoFailed("frame body", err)
	}
	return nil
}

// ReadFrame 从流中读取一帧数据并解码为 Envelope。
func (f *LengthPrefixedFramer) ReadFrame(r io.Reader) (*Envelope, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, readErr("frame header", err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > f.effectiveMaxSize() {
		return nil, merr.WrapErrFrameTooLarge(length, f.effectiveMaxSize())
	}

	env := &Envelope{}
	if length == 0 {
		// 空帧视为空 Envelope。
		return env, nil
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, readErr("frame body", err)
	}
	if err := unmarshalEnvelope(body, env); err != nil {
		return nil, merr.WrapErrStreamCorrupted(err.Error(), "framer")
	}
	if env.Header != nil && env.Header.Size != uint32(len(env.Payload)) {
		return nil, merr.WrapErrStreamCorrupted(
			fmt.Sprintf("payload size %d does not match header size %d", len(env.Payload), env.Header.Size), "framer")
	}
	return env, nil
}

func readErr(key string, err error) error {
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return merr.WrapErrIoUnexpectEOF(key, err)
	}
	return merr.WrapErrIoFailed(key, err)
}

func (f *LengthPrefixedFramer) effectiveMaxSize() uint32 {
	if f == nil || f.MaxFrameSize == 0 {
		return DefaultMaxFrameSize
	}
	return f.MaxFrameSize
}
