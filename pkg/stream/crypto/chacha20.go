package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"io"

	"github.com/cockroachdb/errors"
	"golang.org/x/crypto/chacha20poly1305"
)

// ChaCha20Poly1305Codec 使用 XChaCha20‑Poly1305，适合没有 AES 硬件加速的环境。
//
// 报文格式：nonce || ciphertext，nonce 为 24 字节随机数，可以安全地随机生成。
type ChaCha20Poly1305Codec struct {
	aead cipher.AEAD
}

var _ Encryptor = (*ChaCha20Poly1305Codec)(nil)

// NewChaCha20Poly1305Codec 使用 32 字节密钥创建编码器。
func NewChaCha20Poly1305Codec(key []byte) (*ChaCha20Poly1305Codec, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, errors.Newf("crypto: key must be %d bytes for chacha20poly1305", chacha20poly1305.KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &ChaCha20Poly1305Codec{aead: aead}, nil
}

func (c *ChaCha20Poly1305Codec) Name() string {
	return NameChaCha20
}

func (c *ChaCha20Poly1305Codec) Encrypt(plaintext, aad []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, aad), nil
}

func (c *ChaCha20Poly1305Codec) Decrypt(packet, aad []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(packet) < nonceSize+c.aead.Overhead() {
		return nil, ErrPacketTooShort
	}
	return c.aead.Open(nil, packet[:nonceSize], packet[nonceSize:], aad)
}
