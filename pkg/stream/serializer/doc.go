package serializer

import (
	"fmt"
	"strconv"
	"unicode/utf8"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// 文本格式（json/jsonl）共用的文档模型。
//
// 数值统一以字符串保存，避免 64 位整数与 NaN/Inf 在 JSON 中失真。
// 非法 UTF-8 的字符串值放在 bytes 中保存，JSON 编码器会把它们替换为 U+FFFD。
type recordDoc struct {
	ID     uint64     `json:"id"`
	Bundle *bundleDoc `json:"bundle"`
}

type bundleDoc struct {
	Type    string     `json:"type"`
	Version uint32     `json:"version"`
	Super   *bundleDoc `json:"super,omitempty"`
	Fields  []fieldDoc `json:"fields"`
}

type fieldDoc struct {
	Name   string                   `json:"name"`
	Kind   string                   `json:"kind"`
	Scalar string                   `json:"scalar,omitempty"`
	Text   string                   `json:"text,omitempty"`
	Bytes  []byte                   `json:"bytes,omitempty"`
	Ref    *bundle.EntityReference  `json:"ref,omitempty"`
	Refs   []bundle.EntityReference `json:"refs,omitempty"`
}

func toRecordDocs(s bundle.Stream) ([]recordDoc, error) {
	docs := make([]recordDoc, 0, len(s))
	for _, rec := range s {
		if rec.Bundle == nil {
			return nil, merr.WrapErrParameterInvalidMsg("serializer: record %d has no bundle", rec.ID)
		}
		doc, err := toBundleDoc(rec.Bundle)
		if err != nil {
			return nil, err
		}
		docs = append(docs, recordDoc{ID: uint64(rec.ID), Bundle: doc})
	}
	return docs, nil
}

// checkName 拒绝无法在 JSON 中原样保存的名字。
func checkName(what, name string) error {
	if utf8.ValidString(name) {
		return nil
	}
	return merr.WrapErrUnrepresentableField(fmt.Sprintf("%q", name), what+" is not valid UTF-8")
}

func toBundleDoc(b *bundle.Bundle) (*bundleDoc, error) {
	if err := checkName("type name", string(b.TypeName())); err != nil {
		return nil, err
	}
	doc := &bundleDoc{
		Type:    string(b.TypeName()),
		Version: b.Version(),
		Fields:  make([]fieldDoc, 0, b.Len()),
	}
	if b.Super() != nil {
		super, err := toBundleDoc(b.Super())
		if err != nil {
			return nil, err
		}
		doc.Super = super
	}
	var err error
	b.Range(func(name bundle.EntityName, v bundle.Value) bool {
		var f fieldDoc
		if f, err = toFieldDoc(name, v); err != nil {
			return false
		}
		doc.Fields = append(doc.Fields, f)
		return true
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func toFieldDoc(name bundle.EntityName, v bundle.Value) (fieldDoc, error) {
	if err := checkName("field name", string(name)); err != nil {
		return fieldDoc{}, err
	}
	f := fieldDoc{Name: string(name), Kind: v.Kind().String()}
	switch v.Kind() {
	case bundle.KindBool:
		x, _ := v.Bool()
		f.Scalar = strconv.FormatBool(x)
	case bundle.KindInt:
		x, _ := v.Int()
		f.Scalar = strconv.FormatInt(x, 10)
	case bundle.KindUint:
		x, _ := v.Uint()
		f.Scalar = strconv.FormatUint(x, 10)
	case bundle.KindFloat:
		x, _ := v.Float()
		f.Scalar = strconv.FormatFloat(x, 'g', -1, 64)
	case bundle.KindString:
		x, _ := v.Str()
		if utf8.ValidString(x) {
			f.Text = x
		} else {
			f.Bytes = []byte(x)
		}
	case bundle.KindBytes:
		f.Bytes, _ = v.Bytes()
	case bundle.KindReference:
		ref, _ := v.Reference()
		if err := checkName("reference type name", string(ref.TypeName)); err != nil {
			return fieldDoc{}, err
		}
		f.Ref = &ref
	case bundle.KindReferenceList:
		f.Refs, _ = v.ReferenceList()
		for _, ref := range f.Refs {
			if err := checkName("reference type name", string(ref.TypeName)); err != nil {
				return fieldDoc{}, err
			}
		}
	}
	return f, nil
}

func fromRecordDocs(docs []recordDoc) (bundle.Stream, error) {
	s := make(bundle.Stream, 0, len(docs))
	for i, doc := range docs {
		if doc.Bundle == nil {
			return nil, merr.WrapErrStreamCorrupted(fmt.Sprintf("record %d has no bundle", i))
		}
		b, err := fromBundleDoc(doc.Bundle)
		if err != nil {
			return nil, err
		}
		s = append(s, bundle.Record{ID: bundle.InstanceID(doc.ID), Bundle: b})
	}
	return s, nil
}

func fromBundleDoc(doc *bundleDoc) (*bundle.Bundle, error) {
	b := bundle.NewBuilder(bundle.EntityTypeName(doc.Type), doc.Version)
	if doc.Super != nil {
		super, err := fromBundleDoc(doc.Super)
		if err != nil {
			return nil, err
		}
		b.SetSuper(super)
	}
	for _, f := range doc.Fields {
		v, err := fromFieldDoc(f)
		if err != nil {
			return nil, err
		}
		b.Set(bundle.EntityName(f.Name), v)
	}
	built, err := b.Build()
	if err != nil {
		return nil, merr.WrapErrStreamCorrupted(err.Error())
	}
	return built, nil
}

func fromFieldDoc(f fieldDoc) (bundle.Value, error) {
	kind, ok := bundle.ParseKind(f.Kind)
	if !ok {
		return bundle.Value{}, merr.WrapErrStreamCorrupted(fmt.Sprintf("field %s has unknown kind %q", f.Name, f.Kind))
	}
	corrupted := func(err error) (bundle.Value, error) {
		return bundle.Value{}, merr.WrapErrStreamCorrupted(fmt.Sprintf("field %s: %v", f.Name, err))
	}
	switch kind {
	case bundle.KindBool:
		x, err := strconv.ParseBool(f.Scalar)
		if err != nil {
			return corrupted(err)
		}
		return bundle.BoolValue(x), nil
	case bundle.KindInt:
		x, err := strconv.ParseInt(f.Scalar, 10, 64)
		if err != nil {
			return corrupted(err)
		}
		return bundle.IntValue(x), nil
	case bundle.KindUint:
		x, err := strconv.ParseUint(f.Scalar, 10, 64)
		if err != nil {
			return corrupted(err)
		}
		return bundle.UintValue(x), nil
	case bundle.KindFloat:
		x, err := strconv.ParseFloat(f.Scalar, 64)
		if err != nil {
			return corrupted(err)
		}
		return bundle.FloatValue(x), nil
	case bundle.KindString:
		if f.Bytes != nil {
			if f.Text != "" {
				return corrupted(fmt.Errorf("string field carries both text and bytes"))
			}
			return bundle.StringValue(string(f.Bytes)), nil
		}
		return bundle.StringValue(f.Text), nil
	case bundle.KindBytes:
		return bundle.BytesValue(f.Bytes), nil
	case bundle.KindReference:
		if f.Ref == nil {
			return bundle.ReferenceValue(bundle.NullReference()), nil
		}
		return bundle.ReferenceValue(*f.Ref), nil
	default:
		return bundle.ReferenceListValue(f.Refs), nil
	}
}
