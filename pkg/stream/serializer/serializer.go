package serializer

import (
	"slices"
	"strings"
	"sync"

	"github.com/samber/lo"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// Serializer 抽象了“bundle 流 <-> 字节序列”的序列化能力。
//
// 设计目标：
//   - 协议本身不规定字节格式，JSON、JSON Lines、Protobuf 等编码都可以实现该接口。
//   - 调用方通过名称或接口注入具体实现，便于后续扩展其它序列化方案。
type Serializer interface {
	// Name 返回稳定的格式名，写入编码头中用于解码时选择实现。
	Name() string

	// Marshal 将 bundle 流按顺序编码为字节序列。
	Marshal(s bundle.Stream) ([]byte, error)

	// Unmarshal 将字节序列解码为 bundle 流，记录顺序保持不变。
	Unmarshal(data []byte) (bundle.Stream, error)
}

const (
	NameJSON      = "json"
	NameJSONLines = "jsonl"
	NameProto     = "proto"
)

var (
	mu          sync.RWMutex
	serializers = map[string]Serializer{}
)

func init() {
	Register(JSONSerializer{})
	Register(JSONLinesSerializer{})
	Register(ProtoSerializer{})
}

// Register 注册一个序列化实现，同名实现会被覆盖。
func Register(s Serializer) {
	mu.Lock()
	defer mu.Unlock()
	serializers[s.Name()] = s
}

// Get 按名称返回序列化实现。
func Get(name string) (Serializer, error) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := serializers[name]
	if !ok {
		return nil, merr.WrapErrStreamFormatUnsupported(name, strings.Join(namesLocked(), ","))
	}
	return s, nil
}

// Names 返回已注册的格式名，按字典序排列。
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	return namesLocked()
}

func namesLocked() []string {
	names := lo.Keys(serializers)
	slices.Sort(names)
	return names
}
