package serializer

import (
	"github.com/lk2023060901/danmu-garden-bundle/internal/json"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/bundle"
	"github.com/lk2023060901/danmu-garden-bundle/pkg/util/merr"
)

// JSONSerializer 使用 internal/json（基于 bytedance/sonic）把整个流编码为一个 JSON 数组。
type JSONSerializer struct{}

// 编译期断言：确保 JSONSerializer 实现了 Serializer 接口。
var _ Serializer = (*JSONSerializer)(nil)

func (JSONSerializer) Name() string {
	return NameJSON
}

func (JSONSerializer) Marshal(s bundle.Stream) ([]byte, error) {
	docs, err := toRecordDocs(s)
	if err != nil {
		return nil, err
	}
	return json.Marshal(docs)
}

func (JSONSerializer) Unmarshal(data []byte) (bundle.Stream, error) {
	var docs []recordDoc
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, merr.WrapErrStreamCorrupted(err.Error(), "json")
	}
	return fromRecordDocs(docs)
}
