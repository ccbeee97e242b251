// Package json 统一封装项目内使用的 JSON 实现（基于 bytedance/sonic）。
package json

import (
	"io"

	"github.com/bytedance/sonic"
)

// api 使用与标准库兼容的配置：对 map 键排序、转义 HTML，保证输出稳定。
var api = sonic.ConfigStd

// RawMessage 为未解析的原始 JSON 片段。
type RawMessage = []byte

func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return api.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

func Valid(data []byte) bool {
	return api.Valid(data)
}

// NewEncoder 返回一个写入 w 的流式编码器。
func NewEncoder(w io.Writer) sonic.Encoder {
	return api.NewEncoder(w)
}

// NewDecoder 返回一个从 r 读取的流式解码器。
func NewDecoder(r io.Reader) sonic.Decoder {
	return api.NewDecoder(r)
}
