package codec

import (
	"bytes"
	"encoding/hex"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/compressor"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/crypto"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/framer"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/stream/serializer"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
	zviper "github.com/lk2023060901/danmu-garden-bundle/pkg/util/viper"
)

var testKey = bytes.Repeat([]byte{0x42}, 32)

type CodecSuite struct {
	suite.Suite

	stream bundle.Stream
}

func (s *CodecSuite) SetupSuite() {
	root, err := bundle.NewBuilder("Node", 1).
		Set("name", bundle.StringValue(string(bytes.Repeat([]byte("a"), 4096)))).
		Set("next", bundle.ReferenceValue(bundle.EntityReference{ID: 2, TypeName: "Node"})).
		Build()
	s.Require().NoError(err)
	leaf, err := bundle.NewBuilder("Node", 1).
		Set("name", bundle.StringValue("leaf")).
		Set("next", bundle.ReferenceValue(bundle.EntityReference{ID: 1, TypeName: "Node"})).
		Build()
	s.Require().NoError(err)
	s.stream = bundle.Stream{{ID: 1, Bundle: root}, {ID: 2, Bundle: leaf}}
}

func (s *CodecSuite) newCodec(ser string, compress, encrypt bool) Codec {
	cfg := DefaultConfig()
	cfg.Serializer = ser
	if compress {
		cfg.Compression = compressor.NameZstd
	}
	if encrypt {
		cfg.Encryption = crypto.NameChaCha20
		cfg.EncryptionKey = hex.EncodeToString(testKey)
	}
	c, err := NewFromConfig(cfg)
	s.Require().NoError(err)
	return c
}

func (s *CodecSuite) TestRoundTrip() {
	for _, ser := range serializer.Names() {
		for _, compress := range []bool{false, true} {
			for _, encrypt := range []bool{false, true} {
				c := s.newCodec(ser, compress, encrypt)

				var buf bytes.Buffer
				s.Require().NoError(c.Encode(&buf, s.stream))
				s.Require().NoError(c.Encode(&buf, s.stream[1:]))

				got, err := c.Decode(&buf)
				s.Require().NoError(err)
				s.True(s.stream.Equal(got), "%s compress=%v encrypt=%v", ser, compress, encrypt)

				got, err = c.Decode(&buf)
				s.Require().NoError(err)
				s.Len(got, 1)

				_, err = c.Decode(&buf)
				s.Equal(io.EOF, err)
			}
		}
	}
}

func (s *CodecSuite) TestHeaderFlags() {
	c := s.newCodec(serializer.NameProto, true, true)
	var buf bytes.Buffer
	s.Require().NoError(c.Encode(&buf, s.stream))

	header, plain, err := c.DecodeRaw(&buf)
	s.Require().NoError(err)
	s.Equal(FormatVersion, header.FormatVersion)
	s.Equal(serializer.NameProto, header.Serializer)
	s.Equal(FlagCompressed|FlagEncrypted, header.Flags)
	s.Equal(uint32(2), header.Records)

	decoded, err := serializer.ProtoSerializer{}.Unmarshal(plain)
	s.Require().NoError(err)
	s.True(s.stream.Equal(decoded))
}

func (s *CodecSuite) TestMinCompressSize() {
	cfg := DefaultConfig()
	cfg.Compression = compressor.NameZstd
	cfg.MinCompressSize = 1 << 20
	c, err := NewFromConfig(cfg)
	s.Require().NoError(err)

	var buf bytes.Buffer
	s.Require().NoError(c.Encode(&buf, s.stream))
	s.Require().NoError(c.Encode(&buf, s.stream))

	header, _, err := c.DecodeRaw(&buf)
	s.Require().NoError(err)
	s.Zero(header.Flags & FlagCompressed)

	got, err := c.Decode(&buf)
	s.Require().NoError(err)
	s.True(s.stream.Equal(got))
}

func (s *CodecSuite) TestDecodeFollowsHeaderSerializer() {
	var buf bytes.Buffer
	s.Require().NoError(s.newCodec(serializer.NameJSONLines, false, false).Encode(&buf, s.stream))

	got, err := s.newCodec(serializer.NameProto, false, false).Decode(&buf)
	s.Require().NoError(err)
	s.True(s.stream.Equal(got))
}

func (s *CodecSuite) TestPipelineMismatch() {
	var buf bytes.Buffer
	s.Require().NoError(s.newCodec(serializer.NameProto, true, false).Encode(&buf, s.stream))
	_, err := s.newCodec(serializer.NameProto, false, false).Decode(&buf)
	s.ErrorIs(err, merr.ErrOperationNotSupported)

	buf.Reset()
	s.Require().NoError(s.newCodec(serializer.NameProto, false, true).Encode(&buf, s.stream))
	_, err = s.newCodec(serializer.NameProto, false, false).Decode(&buf)
	s.ErrorIs(err, merr.ErrOperationNotSupported)
}

func (s *CodecSuite) TestWrongKey() {
	var buf bytes.Buffer
	s.Require().NoError(s.newCodec(serializer.NameProto, false, true).Encode(&buf, s.stream))

	cfg := DefaultConfig()
	cfg.Encryption = crypto.NameChaCha20
	cfg.EncryptionKey = hex.EncodeToString(bytes.Repeat([]byte{0x24}, 32))
	other, err := NewFromConfig(cfg)
	s.Require().NoError(err)

	_, err = other.Decode(&buf)
	s.ErrorIs(err, merr.ErrStreamCorrupted)
}

func (s *CodecSuite) writeRaw(h *framer.Header, payload []byte) *bytes.Buffer {
	var buf bytes.Buffer
	s.Require().NoError(framer.NewLengthPrefixedFramer(0).WriteFrame(&buf, &framer.Envelope{Header: h, Payload: payload}))
	return &buf
}

func (s *CodecSuite) TestFormatVersion() {
	c := s.newCodec(serializer.NameProto, false, false)
	payload, err := serializer.ProtoSerializer{}.Marshal(s.stream)
	s.Require().NoError(err)

	for _, v := range []string{"1.4.2", "1.0.0"} {
		got, err := c.Decode(s.writeRaw(&framer.Header{FormatVersion: v, Serializer: serializer.NameProto, Records: 2}, payload))
		s.Require().NoError(err, v)
		s.Len(got, 2)
	}
	for _, v := range []string{"2.0.0", "0.9.0", "", "x.y"} {
		_, err := c.Decode(s.writeRaw(&framer.Header{FormatVersion: v, Serializer: serializer.NameProto, Records: 2}, payload))
		s.ErrorIs(err, merr.ErrStreamFormatUnsupported, v)
	}
}

func (s *CodecSuite) TestCorruptedFrame() {
	c := s.newCodec(serializer.NameProto, false, false)
	payload, err := serializer.ProtoSerializer{}.Marshal(s.stream)
	s.Require().NoError(err)

	_, err = c.Decode(s.writeRaw(&framer.Header{FormatVersion: FormatVersion, Serializer: serializer.NameProto, Records: 5}, payload))
	s.ErrorIs(err, merr.ErrStreamCorrupted)

	_, err = c.Decode(s.writeRaw(nil, payload))
	s.ErrorIs(err, merr.ErrStreamCorrupted)

	_, err = c.Decode(s.writeRaw(&framer.Header{FormatVersion: FormatVersion, Serializer: "xml", Records: 2}, payload))
	s.ErrorIs(err, merr.ErrStreamFormatUnsupported)
}

func (s *CodecSuite) TestEmptyStream() {
	c := s.newCodec(serializer.NameJSON, true, true)
	var buf bytes.Buffer
	s.Require().NoError(c.Encode(&buf, bundle.Stream{}))
	got, err := c.Decode(&buf)
	s.Require().NoError(err)
	s.Empty(got)
}

func TestCodec(t *testing.T) {
	suite.Run(t, new(CodecSuite))
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, merr.ErrParameterMissing)

	c, err := New(Options{Serializer: serializer.JSONSerializer{}})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Encode(nil, nil), merr.ErrParameterMissing)
	_, err = c.Decode(nil)
	assert.ErrorIs(t, err, merr.ErrParameterMissing)
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	v := zviper.New()
	require.NoError(t, v.LoadBytes([]byte(`
codec:
  serializer: jsonl
  compression: zstd
  encryption: aes-gcm-hmac
  encryptionKey: "`+hex.EncodeToString(testKey)+`"
  macKey: "6d6163"
`), "yaml"))

	cfg, err = LoadConfig(v)
	require.NoError(t, err)
	assert.Equal(t, serializer.NameJSONLines, cfg.Serializer)
	assert.Equal(t, compressor.NameZstd, cfg.Compression)
	assert.Equal(t, crypto.NameAESGCMHMAC, cfg.Encryption)
	assert.Equal(t, framer.DefaultMaxFrameSize, cfg.MaxFrameSize)

	c, err := NewFromConfig(cfg)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, c.Encode(&buf, bundle.Stream{}))
}

func TestNewFromConfigErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Serializer = "xml"
	_, err := NewFromConfig(cfg)
	assert.ErrorIs(t, err, merr.ErrStreamFormatUnsupported)

	cfg = DefaultConfig()
	cfg.Compression = "lz4"
	_, err = NewFromConfig(cfg)
	assert.ErrorIs(t, err, merr.ErrParameterInvalid)

	cfg = DefaultConfig()
	cfg.Encryption = crypto.NameChaCha20
	cfg.EncryptionKey = "zz"
	_, err = NewFromConfig(cfg)
	assert.Error(t, err)
}
