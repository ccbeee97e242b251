package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/compressor"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/crypto"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/framer"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/serializer"
	zviper "github.com/lk2023060901/danmu-garden-bundle/pkg/util/viper"
)

// ConfigKey 为配置文件中编解码配置所在的节点。
const ConfigKey = "codec"

// Config 描述编解码流水线的可配置项。
type Config struct {
	Serializer    string `mapstructure:"serializer" json:"serializer"`
	Compression   string `mapstructure:"compression" json:"compression"`
	Encryption    string `mapstructure:"encryption" json:"encryption"`
	EncryptionKey string `mapstructure:"encryptionKey" json:"-"` // hex 编码
	MACKey        string `mapstructure:"macKey" json:"-"`        // hex 编码
	MaxFrameSize  uint32 `mapstructure:"maxFrameSize" json:"maxFrameSize"`

	// MinCompressSize 为触发压缩的最小负载字节数，0 表示总是压缩。
	MinCompressSize int `mapstructure:"minCompressSize" json:"minCompressSize"`
}

// DefaultConfig 返回默认配置：proto 序列化，不压缩，不加密。
func DefaultConfig() Config {
	return Config{
		Serializer:   serializer.NameProto,
		Compression:  compressor.NameNone,
		Encryption:   crypto.NameNone,
		MaxFrameSize: framer.DefaultMaxFrameSize,
	}
}

// LoadConfig 从已加载的配置中读取 codec 节点，未设置的项保持默认值。
func LoadConfig(cfg *zviper.Config) (Config, error) {
	c := DefaultConfig()
	if cfg == nil || !cfg.IsSet(ConfigKey) {
		return c, nil
	}
	if err := cfg.UnmarshalKey(ConfigKey, &c); err != nil {
		return c, fmt.Errorf("codec: load config failed: %w", err)
	}
	return c, nil
}

// NewFromConfig 按配置组装 Codec。
func NewFromConfig(cfg Config) (Codec, error) {
	ser, err := serializer.Get(cfg.Serializer)
	if err != nil {
		return nil, err
	}

	comp, err := compressor.New(cfg.Compression)
	if err != nil {
		return nil, err
	}
	if z, ok := comp.(*compressor.ZstdCompressor); ok {
		z.SetMinCompressSize(cfg.MinCompressSize)
	}

	encKey, err := decodeKey("encryptionKey", cfg.EncryptionKey)
	if err != nil {
		return nil, err
	}
	macKey, err := decodeKey("macKey", cfg.MACKey)
	if err != nil {
		return nil, err
	}
	enc, err := crypto.New(cfg.Encryption, encKey, macKey)
	if err != nil {
		return nil, err
	}

	return New(Options{
		Framer:            framer.NewLengthPrefixedFramer(cfg.MaxFrameSize),
		Serializer:        ser,
		Compressor:        comp,
		Encryptor:         enc,
		EnableCompression: comp.Name() != compressor.NameNone,
		EnableEncryption:  enc.Name() != crypto.NameNone,
	})
}

func decodeKey(name, s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("codec: invalid %s: %w", name, err)
	}
	return key, nil
}
