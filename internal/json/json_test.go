package json

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name  string            `json:"name"`
	Tags  map[string]string `json:"tags,omitempty"`
	Bytes []byte            `json:"bytes"`
}

func TestMarshalUnmarshal(t *testing.T) {
	in := sample{Name: "widget", Tags: map[string]string{"b": "2", "a": "1"}, Bytes: []byte{0, 1, 2}}
	data, err := Marshal(in)
	require.NoError(t, err)
	assert.True(t, Valid(data))
	assert.Contains(t, string(data), `"tags":{"a":"1","b":"2"}`)

	var out sample
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in, out)
}

func TestEncoderDecoder(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(sample{Name: "a"}))
	require.NoError(t, enc.Encode(sample{Name: "b"}))

	dec := NewDecoder(&buf)
	var first, second sample
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "a", first.Name)
	assert.Equal(t, "b", second.Name)
}
