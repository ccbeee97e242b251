package serializer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/suite"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

type SerializerSuite struct {
	suite.Suite

	stream bundle.Stream
}

func (s *SerializerSuite) SetupSuite() {
	super, err := bundle.NewBuilder("Base", 1).
		Set("serial", bundle.UintValue(math.MaxUint64)).
		Build()
	s.Require().NoError(err)

	root, err := bundle.NewBuilder("Widget", 2).
		SetSuper(super).
		Set("flag", bundle.BoolValue(true)).
		Set("min", bundle.IntValue(math.MinInt64)).
		Set("neg", bundle.IntValue(-1)).
		Set("ratio", bundle.FloatValue(0.1)).
		Set("inf", bundle.FloatValue(math.Inf(1))).
		Set("label", bundle.StringValue("héllo \"world\"")).
		Set("empty", bundle.StringValue("")).
		Set("latin1", bundle.StringValue("a\xffb\xc3")).
		Set("lone", bundle.StringValue("\x80")).
		Set("checksum", bundle.BytesValue([]byte{0, 1, 0xff})).
		Set("nothing", bundle.BytesValue([]byte{})).
		Set("next", bundle.ReferenceValue(bundle.EntityReference{ID: 2, TypeName: "Node"})).
		Set("none", bundle.ReferenceValue(bundle.NullReference())).
		Set("peers", bundle.ReferenceListValue([]bundle.EntityReference{{ID: 2, TypeName: "Node"}, {}})).
		Set("noPeers", bundle.ReferenceListValue(nil)).
		Build()
	s.Require().NoError(err)

	leaf, err := bundle.NewBuilder("Node", 1).Build()
	s.Require().NoError(err)

	s.stream = bundle.Stream{{ID: 1, Bundle: root}, {ID: 2, Bundle: leaf}}
}

func (s *SerializerSuite) TestRoundTrip() {
	for _, name := range Names() {
		s.Run(name, func() {
			ser, err := Get(name)
			s.Require().NoError(err)
			s.Equal(name, ser.Name())

			data, err := ser.Marshal(s.stream)
			s.Require().NoError(err)
			got, err := ser.Unmarshal(data)
			s.Require().NoError(err)
			s.True(s.stream.Equal(got), "stream changed after %s round trip", name)
		})
	}
}

func (s *SerializerSuite) TestInvalidUTF8String() {
	for _, name := range Names() {
		ser, _ := Get(name)
		data, err := ser.Marshal(s.stream)
		s.Require().NoError(err)
		got, err := ser.Unmarshal(data)
		s.Require().NoError(err)

		root, _ := got.Root()
		v, ok := root.Bundle.Field("latin1")
		s.Require().True(ok, name)
		str, _ := v.Str()
		s.Equal("a\xffb\xc3", str, name)
	}

	_, err := JSONSerializer{}.Unmarshal([]byte(`[{"id":1,"bundle":{"type":"A","version":1,"fields":[{"name":"x","kind":"string","text":"t","bytes":"AA=="}]}}]`))
	s.ErrorIs(err, merr.ErrStreamCorrupted)
}

func (s *SerializerSuite) TestInvalidUTF8Names() {
	badType, err := bundle.NewBuilder("Node\xff", 1).Build()
	s.Require().NoError(err)
	badField, err := bundle.NewBuilder("Node", 1).Set("n\xfe", bundle.IntValue(1)).Build()
	s.Require().NoError(err)
	badRef, err := bundle.NewBuilder("Node", 1).
		Set("next", bundle.ReferenceValue(bundle.EntityReference{ID: 1, TypeName: "\xc3"})).
		Build()
	s.Require().NoError(err)

	for _, b := range []*bundle.Bundle{badType, badField, badRef} {
		for _, ser := range []Serializer{JSONSerializer{}, JSONLinesSerializer{}} {
			_, err := ser.Marshal(bundle.Stream{{ID: 1, Bundle: b}})
			s.ErrorIs(err, merr.ErrUnrepresentableField, ser.Name())
		}

		data, err := ProtoSerializer{}.Marshal(bundle.Stream{{ID: 1, Bundle: b}})
		s.Require().NoError(err)
		got, err := ProtoSerializer{}.Unmarshal(data)
		s.Require().NoError(err)
		s.True(got[0].Bundle.Equal(b))
	}
}

func (s *SerializerSuite) TestEmptyStream() {
	for _, name := range Names() {
		ser, _ := Get(name)
		data, err := ser.Marshal(nil)
		s.Require().NoError(err)
		got, err := ser.Unmarshal(data)
		s.Require().NoError(err)
		s.Len(got, 0)
	}
}

func (s *SerializerSuite) TestUnknownFormat() {
	_, err := Get("xml")
	s.ErrorIs(err, merr.ErrStreamFormatUnsupported)
	s.Equal([]string{"json", "jsonl", "proto"}, Names())
}

func (s *SerializerSuite) TestCorruptedInput() {
	for _, name := range Names() {
		ser, _ := Get(name)
		_, err := ser.Unmarshal([]byte{0x0a, 0xff, 0xff})
		s.ErrorIs(err, merr.ErrStreamCorrupted, name)
	}

	_, err := JSONSerializer{}.Unmarshal([]byte(`[{"id":1,"bundle":{"type":"A","version":1,"fields":[{"name":"x","kind":"int","scalar":"nope"}]}}]`))
	s.ErrorIs(err, merr.ErrStreamCorrupted)

	_, err = JSONSerializer{}.Unmarshal([]byte(`[{"id":1,"bundle":{"type":"A","version":1,"fields":[{"name":"x","kind":"blob"}]}}]`))
	s.ErrorIs(err, merr.ErrStreamCorrupted)

	_, err = JSONSerializer{}.Unmarshal([]byte(`[{"id":1}]`))
	s.ErrorIs(err, merr.ErrStreamCorrupted)

	// 重复字段在解码时被拒绝。
	_, err = JSONLinesSerializer{}.Unmarshal([]byte(`{"id":1,"bundle":{"type":"A","version":1,"fields":[{"name":"x","kind":"string"},{"name":"x","kind":"string"}]}}` + "\n"))
	s.ErrorIs(err, merr.ErrStreamCorrupted)
}

func (s *SerializerSuite) TestJSONLinesLayout() {
	data, err := JSONLinesSerializer{}.Marshal(s.stream)
	s.Require().NoError(err)
	lines := 0
	for _, c := range data {
		if c == '\n' {
			lines++
		}
	}
	s.Equal(len(s.stream), lines)
}

func (s *SerializerSuite) TestProtoSkipsUnknownFields() {
	data, err := ProtoSerializer{}.Marshal(s.stream)
	s.Require().NoError(err)

	// 追加一个未知的顶层字段。
	data = protowire.AppendTag(data, 15, protowire.VarintType)
	data = protowire.AppendVarint(data, 42)
	got, err := ProtoSerializer{}.Unmarshal(data)
	s.Require().NoError(err)
	s.True(s.stream.Equal(got))
}

func (s *SerializerSuite) TestNilBundleRejected() {
	for _, name := range Names() {
		ser, _ := Get(name)
		_, err := ser.Marshal(bundle.Stream{{ID: 1}})
		s.ErrorIs(err, merr.ErrParameterInvalid, name)
	}
}

func TestSerializer(t *testing.T) {
	suite.Run(t, new(SerializerSuite))
}
