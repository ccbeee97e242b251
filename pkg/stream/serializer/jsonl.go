package serializer

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"

	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

var jsonlAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONLinesSerializer 每行写出一条记录，便于按行查看或用文本工具处理。
type JSONLinesSerializer struct{}

// 编译期断言：确保 JSONLinesSerializer 实现了 Serializer 接口。
var _ Serializer = (*JSONLinesSerializer)(nil)

func (JSONLinesSerializer) Name() string {
	return NameJSONLines
}

func (JSONLinesSerializer) Marshal(s bundle.Stream) ([]byte, error) {
	docs, err := toRecordDocs(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := jsonlAPI.NewEncoder(&buf)
	for i := range docs {
		// Encode 在每条记录后追加换行。
		if err := enc.Encode(&docs[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (JSONLinesSerializer) Unmarshal(data []byte) (bundle.Stream, error) {
	dec := jsonlAPI.NewDecoder(bytes.NewReader(data))
	var docs []recordDoc
	for dec.More() {
		var doc recordDoc
		if err := dec.Decode(&doc); err != nil {
			return nil, merr.WrapErrStreamCorrupted(err.Error(), "jsonl")
		}
		docs = append(docs, doc)
	}
	return fromRecordDocs(docs)
}
