package bundle

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

type BundleSuite struct {
	suite.Suite
}

func (s *BundleSuite) TestValueAccessors() {
	b, ok := BoolValue(true).Bool()
	s.True(ok)
	s.True(b)

	i, ok := IntValue(-42).Int()
	s.True(ok)
	s.Equal(int64(-42), i)

	u, ok := UintValue(math.MaxUint64).Uint()
	s.True(ok)
	s.Equal(uint64(math.MaxUint64), u)

	f, ok := FloatValue(math.Inf(-1)).Float()
	s.True(ok)
	s.True(math.IsInf(f, -1))

	_, ok = StringValue("x").Int()
	s.False(ok)

	s.False(Value{}.IsValid())
	s.Equal("<invalid>", Value{}.String())
	s.Equal(`"x"`, StringValue("x").String())
	s.Equal("Node#3", ReferenceValue(EntityReference{ID: 3, TypeName: nodeType}).String())
	s.Equal("<null>", NullReference().String())
}

func (s *BundleSuite) TestBytesValueIsCopied() {
	src := []byte{1, 2, 3}
	v := BytesValue(src)
	src[0] = 9

	out, ok := v.Bytes()
	s.True(ok)
	s.Equal([]byte{1, 2, 3}, out)

	out[1] = 9
	again, _ := v.Bytes()
	s.Equal([]byte{1, 2, 3}, again)

	empty, ok := BytesValue(nil).Bytes()
	s.True(ok)
	s.NotNil(empty)
	s.Len(empty, 0)
}

func (s *BundleSuite) TestKindString() {
	s.Equal("reference_list", KindReferenceList.String())
	k, ok := ParseKind("bytes")
	s.True(ok)
	s.Equal(KindBytes, k)
	_, ok = ParseKind("invalid")
	s.False(ok)
	s.Equal("kind(99)", Kind(99).String())
}

func (s *BundleSuite) TestBuilder() {
	b := NewBuilder(widgetType, 2)
	b.Set("a", IntValue(1)).Set("b", StringValue("x"))
	bundle, err := b.Build()
	s.Require().NoError(err)

	s.Equal(widgetType, bundle.TypeName())
	s.Equal(uint32(2), bundle.Version())
	s.Equal(2, bundle.Len())
	s.True(bundle.Has("a"))
	s.False(bundle.Has("c"))
	s.Nil(bundle.Super())

	var names []EntityName
	bundle.Range(func(name EntityName, _ Value) bool {
		names = append(names, name)
		return true
	})
	s.Equal([]EntityName{"a", "b"}, names)

	// 封存后的写入不影响已构造的 bundle。
	b.Set("c", IntValue(3))
	s.False(bundle.Has("c"))
	_, err = b.Build()
	s.ErrorIs(err, merr.ErrOperationNotSupported)
}

func (s *BundleSuite) TestBuilderWriteOnce() {
	b := NewBuilder(widgetType, 1)
	b.Set("a", IntValue(1)).Set("a", IntValue(2))
	_, err := b.Build()
	s.ErrorIs(err, merr.ErrFieldReduplicate)

	b = NewBuilder(widgetType, 1)
	super, _ := NewBuilder(baseType, 1).Build()
	b.SetSuper(super).SetSuper(super)
	_, err = b.Build()
	s.ErrorIs(err, merr.ErrFieldReduplicate)

	_, err = NewBuilder(widgetType, 1).Set("a", Value{}).Build()
	s.ErrorIs(err, merr.ErrUnrepresentableField)

	_, err = NewBuilder("", 1).Build()
	s.ErrorIs(err, merr.ErrParameterInvalid)

	_, err = NewBuilder(widgetType, 1).Set("", IntValue(1)).Build()
	s.ErrorIs(err, merr.ErrParameterInvalid)
}

func (s *BundleSuite) TestSuperNamespaces() {
	super, err := NewBuilder(baseType, 1).Set("serial", UintValue(7)).Build()
	s.Require().NoError(err)
	b, err := NewBuilder(gadgetType, 1).SetSuper(super).Set("serial", StringValue("g-1")).Build()
	s.Require().NoError(err)

	child, _ := b.Field("serial")
	s.Equal(KindString, child.Kind())
	parent, _ := b.Super().Field("serial")
	s.Equal(KindUint, parent.Kind())
	s.Equal(1, b.Len())
}

func (s *BundleSuite) TestReferences() {
	super, _ := NewBuilder(baseType, 1).
		Set("owner", ReferenceValue(EntityReference{ID: 4, TypeName: nodeType})).
		Build()
	b, _ := NewBuilder(sceneType, 1).
		SetSuper(super).
		Set("chain", ReferenceValue(EntityReference{ID: 2, TypeName: nodeType})).
		Set("none", ReferenceValue(NullReference())).
		Set("items", ReferenceListValue([]EntityReference{{ID: 3, TypeName: nodeType}, {}})).
		Build()

	refs := b.References()
	s.Equal([]InstanceID{2, 3, 4}, []InstanceID{refs[0].ID, refs[1].ID, refs[2].ID})
	s.Len(refs, 3)
}

func (s *BundleSuite) TestFreeBuilderRejectsEntities() {
	b := NewBuilder(sceneType, 1)
	Ref("chain").Put(b, &Node{Name: "a"})
	_, err := b.Build()
	s.ErrorIs(err, merr.ErrUnrepresentableField)
}

func (s *BundleSuite) TestHolders() {
	stamp := time.Date(2024, 5, 1, 12, 30, 0, 123, time.FixedZone("X", 3600))

	b := NewBuilder(widgetType, 1)
	Bool("flag").Put(b, true)
	Int("int").Put(b, math.MinInt64)
	Int32("i32").Put(b, -7)
	Uint("uint").Put(b, 9)
	Float("float").Put(b, 0.25)
	String("str").Put(b, "héllo")
	Bytes("raw").Put(b, []byte{0, 0, 255})
	Bytes("empty").Put(b, []byte{})
	Time("at").Put(b, stamp)
	bundle, err := b.Build()
	s.Require().NoError(err)

	flag, err := Bool("flag").Get(bundle)
	s.NoError(err)
	s.True(flag)

	n, err := Int("int").Get(bundle)
	s.NoError(err)
	s.Equal(int64(math.MinInt64), n)

	n32, err := Int32("i32").Get(bundle)
	s.NoError(err)
	s.Equal(int32(-7), n32)

	un, err := Uint("uint").Get(bundle)
	s.NoError(err)
	s.Equal(uint64(9), un)

	f, err := Float("float").Get(bundle)
	s.NoError(err)
	s.Equal(0.25, f)

	str, err := String("str").Get(bundle)
	s.NoError(err)
	s.Equal("héllo", str)

	raw, err := Bytes("raw").Get(bundle)
	s.NoError(err)
	s.Equal([]byte{0, 0, 255}, raw)

	empty, err := Bytes("empty").Get(bundle)
	s.NoError(err)
	s.NotNil(empty)
	s.Len(empty, 0)

	at, err := Time("at").Get(bundle)
	s.NoError(err)
	s.True(stamp.Equal(at))
}

func (s *BundleSuite) TestHolderDefaultsAndMandatory() {
	bundle, _ := NewBuilder(widgetType, 1).Set("wide", IntValue(math.MaxInt64)).Build()

	v, err := String("missing").Get(bundle)
	s.NoError(err)
	s.Equal("", v)

	v, err = String("missing").WithDefault("fallback").Get(bundle)
	s.NoError(err)
	s.Equal("fallback", v)

	_, err = String("missing").Mandatory().Get(bundle)
	s.ErrorIs(err, merr.ErrMissingMandatoryField)

	ref, err := Ref("missing").Get(bundle)
	s.NoError(err)
	s.True(ref.IsNull())

	_, err = Ref("missing").Mandatory().Get(bundle)
	s.ErrorIs(err, merr.ErrMissingMandatoryField)

	refs, err := RefList("missing").Get(bundle)
	s.NoError(err)
	s.Nil(refs)

	_, err = String("wide").Get(bundle)
	s.ErrorIs(err, merr.ErrFieldTypeMismatch)

	_, err = Int32("wide").Get(bundle)
	s.ErrorIs(err, merr.ErrFieldTypeMismatch)

	_, err = Ref("wide").Get(bundle)
	s.ErrorIs(err, merr.ErrFieldTypeMismatch)

	_, err = Int("x").Get(nil)
	s.ErrorIs(err, merr.ErrParameterMissing)
}

func (s *BundleSuite) TestNilReferenceWrites() {
	b := NewBuilder(sceneType, 1)
	var node *Node
	Ref("optional").Put(b, node)
	bundle, err := b.Build()
	s.NoError(err)
	s.False(bundle.Has("optional"))

	b = NewBuilder(sceneType, 1)
	Ref("required").Mandatory().Put(b, node)
	_, err = b.Build()
	s.ErrorIs(err, merr.ErrMissingMandatoryField)
}

func (s *BundleSuite) TestAnyHolder() {
	b := NewBuilder(widgetType, 1)
	Any("int").Put(b, 3)
	Any("uint8").Put(b, uint8(4))
	Any("float32").Put(b, float32(1.5))
	Any("str").Put(b, "s")
	Any("raw").Put(b, []byte("ab"))
	Any("ref").Put(b, EntityReference{ID: 2, TypeName: nodeType})
	Any("nil").Put(b, nil)
	bundle, err := b.Build()
	s.Require().NoError(err)

	cases := map[EntityName]any{
		"int":     int64(3),
		"uint8":   uint64(4),
		"float32": 1.5,
		"str":     "s",
		"raw":     []byte("ab"),
		"ref":     EntityReference{ID: 2, TypeName: nodeType},
	}
	for name, want := range cases {
		got, err := Any(name).Get(bundle)
		s.NoError(err, name)
		s.Equal(want, got, name)
	}
	got, err := Any("nil").Get(bundle)
	s.NoError(err)
	s.Nil(got)

	b = NewBuilder(widgetType, 1)
	Any("chan").Put(b, make(chan int))
	_, err = b.Build()
	s.ErrorIs(err, merr.ErrUnrepresentableField)

	b = NewBuilder(widgetType, 1)
	Any("nil").Mandatory().Put(b, nil)
	_, err = b.Build()
	s.ErrorIs(err, merr.ErrMissingMandatoryField)
}

func (s *BundleSuite) TestBundleEqual() {
	a, _ := NewBuilder(widgetType, 1).Set("a", BytesValue([]byte{1})).Build()
	b, _ := NewBuilder(widgetType, 1).Set("a", BytesValue([]byte{1})).Build()
	c, _ := NewBuilder(widgetType, 2).Set("a", BytesValue([]byte{1})).Build()
	s.True(a.Equal(b))
	s.False(a.Equal(c))
	s.False(a.Equal(nil))
	s.True((*Bundle)(nil).Equal(nil))
}

func TestBundle(t *testing.T) {
	suite.Run(t, new(BundleSuite))
}
