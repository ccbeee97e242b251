package crypto

import (
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// Encryptor 抽象了单一“加密方案”的能力：
//   - Encrypt：加密 +（可选）签名/防篡改，生成完整报文
//   - Decrypt：验签 + 解密，还原明文
//
// aad（Associated Data）为关联数据，不加密但需要完整性保护（例如编码头中的格式版本、记录数等）。
type Encryptor interface {
	Name() string
	Encrypt(plaintext, aad []byte) (packet []byte, err error)
	Decrypt(packet, aad []byte) (plaintext []byte, err error)
}

const (
	NameNone       = "none"
	NameAESGCMHMAC = "aes-gcm-hmac"
	NameChaCha20   = "chacha20poly1305"
)

// New 按名称创建加密器。
//
// aes-gcm-hmac 需要 32 字节 encKey 与非空 macKey；chacha20poly1305 只使用 32 字节 encKey。
func New(name string, encKey, macKey []byte) (Encryptor, error) {
	switch name {
	case "", NameNone:
		return NopEncryptor{}, nil
	case NameAESGCMHMAC:
		return NewAESGCMHMACCodec(encKey, macKey)
	case NameChaCha20:
		return NewChaCha20Poly1305Codec(encKey)
	default:
		return nil, merr.WrapErrParameterInvalid(NameNone+"|"+NameAESGCMHMAC+"|"+NameChaCha20, name, "encryption")
	}
}

// NopEncryptor 是一个空实现：不做加密也不做验签，直接透传数据。
//
// 适用于：
//   - 本地开发/调试阶段，不希望引入加解密开销
//   - 按配置开关动态启用/关闭加密，而不影响调用方逻辑
type NopEncryptor struct{}

func (NopEncryptor) Name() string {
	return NameNone
}

func (NopEncryptor) Encrypt(plaintext, _ []byte) ([]byte, error) {
	return plaintext, nil
}

func (NopEncryptor) Decrypt(packet, _ []byte) ([]byte, error) {
	return packet, nil
}

// 编译期断言：确保 NopEncryptor 实现了 Encryptor 接口。
var _ Encryptor = NopEncryptor{}
