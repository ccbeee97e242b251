package framer

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

func TestFrameRoundTrip(t *testing.T) {
	f := NewLengthPrefixedFramer(0)
	assert.Equal(t, DefaultMaxFrameSize, f.MaxFrameSize)

	var buf bytes.Buffer
	env := &Envelope{
		Header:  &Header{FormatVersion: "1.0.0", Serializer: "proto", Flags: 3, Records: 7, Size: 999},
		Payload: []byte("payload"),
	}
	require.NoError(t, f.WriteFrame(&buf, env))
	assert.Equal(t, uint32(len("payload")), env.Header.Size)
	require.NoError(t, f.WriteFrame(&buf, &Envelope{}))

	got, err := f.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, env.Header, got.Header)
	assert.Equal(t, env.Payload, got.Payload)

	empty, err := f.ReadFrame(&buf)
	require.NoError(t, err)
	assert.Nil(t, empty.Header)
	assert.Empty(t, empty.Payload)

	_, err = f.ReadFrame(&buf)
	assert.Equal(t, io.EOF, err)
}

func TestFrameTooLarge(t *testing.T) {
	f := NewLengthPrefixedFramer(8)
	err := f.WriteFrame(io.Discard, &Envelope{Payload: bytes.Repeat([]byte{1}, 32)})
	assert.ErrorIs(t, err, merr.ErrFrameTooLarge)

	_, err = f.ReadFrame(bytes.NewReader([]byte{0, 0, 1, 0}))
	assert.ErrorIs(t, err, merr.ErrFrameTooLarge)
}

func TestFrameTruncated(t *testing.T) {
	f := NewLengthPrefixedFramer(0)
	var buf bytes.Buffer
	require.NoError(t, f.WriteFrame(&buf, &Envelope{Header: &Header{Serializer: "json"}, Payload: []byte("abc")}))
	data := buf.Bytes()

	_, err := f.ReadFrame(bytes.NewReader(data[:len(data)-1]))
	assert.ErrorIs(t, err, merr.ErrIoUnexpectEOF)

	_, err = f.ReadFrame(bytes.NewReader(data[:2]))
	assert.ErrorIs(t, err, merr.ErrIoUnexpectEOF)

	assert.ErrorIs(t, f.WriteFrame(io.Discard, nil), merr.ErrParameterMissing)
}

func TestFrameCorrupted(t *testing.T) {
	f := NewLengthPrefixedFramer(0)
	_, err := f.ReadFrame(bytes.NewReader([]byte{0, 0, 0, 2, 0x0a, 0xff}))
	assert.ErrorIs(t, err, merr.ErrStreamCorrupted)
}

func TestHeaderBinary(t *testing.T) {
	h := &Header{FormatVersion: "1.2.3", Serializer: "jsonl", Records: 1}
	data, err := h.MarshalBinary()
	require.NoError(t, err)

	var got Header
	require.NoError(t, got.UnmarshalBinary(data))
	assert.Equal(t, *h, got)
}
